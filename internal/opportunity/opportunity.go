// Package opportunity derives a per-deployment annualized yield estimate from the
// registry catalog, query-fee telemetry and the current unit price.
package opportunity

import (
	"math"
	"sort"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/observe"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/telemetry"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/units"
)

// DefaultCuratorShareRate is the protocol fraction of query fees paid to curators.
const DefaultCuratorShareRate = 0.10

// Calculator joins deployments with telemetry. The zero value uses the defaults.
type Calculator struct {
	// ShareRate is the curator share of query fees; <= 0 selects DefaultCuratorShareRate
	ShareRate float64

	Extrapolator telemetry.Extrapolator

	// Observer is notified once per computed opportunity; nil disables it
	Observer observe.Observer
}

// Compute runs the zero-value Calculator.
func Compute(deployments []model.DeploymentRecord, tel map[string]model.TelemetryRecord, unitPrice float64) []model.Opportunity {
	return Calculator{}.Compute(deployments, tel, unitPrice)
}

// Compute returns one Opportunity per deployment, sorted by yield descending with
// ties kept in input order. Deployments without telemetry get zero fees and yield.
func (c Calculator) Compute(deployments []model.DeploymentRecord, tel map[string]model.TelemetryRecord, unitPrice float64) []model.Opportunity {
	rate := c.ShareRate
	if rate <= 0 {
		rate = DefaultCuratorShareRate
	}
	ext := c.Extrapolator
	if ext.SubPeriodsPerYear <= 0 {
		ext = telemetry.New(0)
	}
	price := finite(unitPrice)
	obs := observe.OrNop(c.Observer)

	opps := make([]model.Opportunity, 0, len(deployments))
	for _, d := range deployments {
		rec, ok := tel[d.IPFSHash]
		proj := ext.Project(rec, ok)

		signal := units.ToTokenUnits(d.SignalledTokensRaw)
		shareTokens := finite(proj.AnnualFees * rate)
		shareValue := finite(shareTokens * price)
		signalValue := finite(signal * price)

		var yield float64
		if signalValue > 0 {
			yield = shareValue / signalValue * 100
		}

		versionID, _ := units.VersionID(d.Versions)
		dq, df := proj.Daily()
		wq, wf := proj.Weekly()

		opp := model.Opportunity{
			IPFSHash:           d.IPFSHash,
			VersionID:          versionID,
			SignalAmount:       signal,
			SignalValue:        signalValue,
			AnnualQueries:      proj.AnnualQueries,
			AnnualFees:         proj.AnnualFees,
			CuratorShareTokens: shareTokens,
			CuratorShareValue:  shareValue,
			Yield:              finite(yield),
			ReserveRatio:       d.ReserveRatio,
			CuratorCount:       d.CuratorCount,
			DailyQueries:       dq,
			DailyFees:          df,
			WeeklyQueries:      wq,
			WeeklyFees:         wf,
		}
		obs.OpportunityComputed(opp, ok)
		opps = append(opps, opp)
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Yield > opps[j].Yield
	})
	return opps
}

// ByHash indexes opportunities by ipfs hash.
func ByHash(opps []model.Opportunity) map[string]model.Opportunity {
	out := make(map[string]model.Opportunity, len(opps))
	for _, o := range opps {
		out[o.IPFSHash] = o
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
