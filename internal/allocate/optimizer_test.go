package allocate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

func catalog() []model.Opportunity {
	return []model.Opportunity{
		{IPFSHash: "QmHigh", SignalAmount: 1000, CuratorShareValue: 100, Yield: 10},
		{IPFSHash: "QmLow", SignalAmount: 1000, CuratorShareValue: 50, Yield: 5},
		{IPFSHash: "QmDead", SignalAmount: 1000, CuratorShareValue: 0, Yield: 0},
	}
}

func TestAllocate_GreedyWithCap(t *testing.T) {
	res, err := Allocate(catalog(), 1, 1000)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, res.Allocations["QmHigh"], 1e-9)
	assert.InDelta(t, 100.0, res.Allocations["QmLow"], 1e-9)
	_, dead := res.Allocations["QmDead"]
	assert.False(t, dead)

	assert.InDelta(t, 200.0, res.TotalAllocated, 1e-9)
	assert.InDelta(t, 800.0, res.UnallocatedTokens, 1e-9)
	assert.Equal(t, 21, res.Iterations)

	highYield := 100.0 * 100 / 1100
	lowYield := 50.0 * 100 / 1100
	assert.InDelta(t, (highYield+lowYield)/2, res.ExpectedYield, 1e-9)
	assert.InDelta(t, 1.0, res.EntryCosts, 1e-9)
	assert.InDelta(t, highYield+lowYield-1, res.ExpectedEarnings, 1e-9)
}

func TestAllocate_PrefersHigherYieldFirst(t *testing.T) {
	res, err := Optimizer{MaxIterations: 3}.Allocate(catalog(), 1, 1000)
	require.NoError(t, err)

	assert.InDelta(t, 30.0, res.Allocations["QmHigh"], 1e-9)
	assert.NotContains(t, res.Allocations, "QmLow")
	assert.Equal(t, 3, res.Iterations)
}

func TestAllocate_StepShrinksToRemaining(t *testing.T) {
	opt := Optimizer{Step: 10, CapFraction: 1}
	res, err := opt.Allocate(catalog()[:1], 1, 25)
	require.NoError(t, err)

	assert.InDelta(t, 25.0, res.Allocations["QmHigh"], 1e-9)
	assert.Zero(t, res.UnallocatedTokens)
}

func TestAllocate_EntryCostBlocksMarginalPositions(t *testing.T) {
	// yield after dilution is below the 0.5 point entry cost
	thin := []model.Opportunity{{IPFSHash: "QmThin", SignalAmount: 1e6, CuratorShareValue: 1000}}
	res, err := Allocate(thin, 1, 1000)
	require.NoError(t, err)

	assert.Empty(t, res.Allocations)
	assert.Zero(t, res.ExpectedYield)
	assert.InDelta(t, 1000.0, res.UnallocatedTokens, 1e-9)
}

func TestAllocate_Errors(t *testing.T) {
	for _, capital := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		_, err := Allocate(catalog(), 1, capital)
		assert.ErrorIs(t, err, ErrNoCapital)
	}
}

func TestAllocate_ZeroPriceAllocatesNothing(t *testing.T) {
	res, err := Allocate(catalog(), 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.Equal(t, 1, res.Iterations)
}
