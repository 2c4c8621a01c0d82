// Package allocate distributes new capital across the opportunity catalog.
package allocate

import (
	"errors"
	"math"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// ErrNoCapital is returned when the capital to allocate is not positive.
var ErrNoCapital = errors.New("capital must be greater than 0")

const (
	DefaultStep          = 10.0
	DefaultCapFraction   = 0.10
	DefaultEntryCost     = 0.005
	DefaultMaxIterations = 1000
)

// Optimizer greedily allocates capital in fixed steps to the opportunity with the
// highest post-dilution yield. Zero fields select the defaults.
type Optimizer struct {
	// Step is the allocation increment in token units
	Step float64

	// CapFraction caps each deployment at this fraction of the capital
	CapFraction float64

	// EntryCost is the one-time cost of opening a position, as a fraction of the allocation
	EntryCost float64

	MaxIterations int
}

func (o Optimizer) withDefaults() Optimizer {
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.CapFraction <= 0 || o.CapFraction > 1 {
		o.CapFraction = DefaultCapFraction
	}
	if o.EntryCost <= 0 || o.EntryCost >= 1 {
		o.EntryCost = DefaultEntryCost
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// Allocate runs the zero-value Optimizer.
func Allocate(catalog []model.Opportunity, unitPrice, capital float64) (model.AllocationResult, error) {
	return Optimizer{}.Allocate(catalog, unitPrice, capital)
}

// Allocate distributes capital token units over catalog. Each step goes to the
// deployment whose yield after the step is highest, net of the entry cost when the
// position is new. Deployments that would not yield a positive return receive nothing.
// Ties keep catalog order.
func (o Optimizer) Allocate(catalog []model.Opportunity, unitPrice, capital float64) (model.AllocationResult, error) {
	if capital <= 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		return model.AllocationResult{}, ErrNoCapital
	}
	o = o.withDefaults()

	limit := capital * o.CapFraction
	allocations := make(map[string]float64)
	remaining := capital
	iterations := 0

	for remaining > 0 && iterations < o.MaxIterations {
		iterations++
		step := math.Min(o.Step, remaining)

		best := -1
		bestYield := 0.0
		for i, opp := range catalog {
			current := allocations[opp.IPFSHash]
			room := limit - current
			if room <= 0 {
				continue
			}
			y := dilutedYield(opp, current+math.Min(step, room), unitPrice)
			if current == 0 {
				y -= o.EntryCost * 100
			}
			if y > bestYield {
				best, bestYield = i, y
			}
		}
		if best < 0 {
			break
		}

		hash := catalog[best].IPFSHash
		size := math.Min(step, limit-allocations[hash])
		allocations[hash] += size
		remaining -= size
	}

	return o.summarize(catalog, allocations, unitPrice, capital, iterations), nil
}

func (o Optimizer) summarize(catalog []model.Opportunity, allocations map[string]float64, unitPrice, capital float64, iterations int) model.AllocationResult {
	res := model.AllocationResult{
		Allocations: allocations,
		Iterations:  iterations,
	}

	var weightedYield, earnings float64
	for _, opp := range catalog {
		a, ok := allocations[opp.IPFSHash]
		if !ok {
			continue
		}
		res.TotalAllocated += a
		y := dilutedYield(opp, a, unitPrice)
		weightedYield += y * a
		earnings += y / 100 * a * unitPrice
		res.EntryCosts += a * o.EntryCost
	}

	if res.TotalAllocated > 0 {
		res.ExpectedYield = weightedYield / res.TotalAllocated
	}
	res.ExpectedEarnings = earnings - res.EntryCosts*unitPrice
	res.UnallocatedTokens = math.Max(0, capital-res.TotalAllocated)
	return res
}

// dilutedYield is the yield of holding a tokens in opp after adding them to its signal.
func dilutedYield(opp model.Opportunity, a, unitPrice float64) float64 {
	if a <= 0 || unitPrice <= 0 {
		return 0
	}
	total := opp.SignalAmount + a
	earnings := opp.CuratorShareValue * a / total
	y := earnings / (a * unitPrice) * 100
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0
	}
	return y
}
