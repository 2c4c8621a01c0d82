package position

import (
	"math"
	"sort"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/observe"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/opportunity"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/units"
)

// Result holds the attributed positions and the hashes that had no catalog entry.
type Result struct {
	Positions []model.HolderPosition

	// Missing lists reconciled hashes absent from the catalog, in input order
	Missing []string
}

// Attributor joins raw signals against an opportunity catalog.
type Attributor struct {
	Observer observe.Observer
}

// Attribute runs the zero-value Attributor.
func Attribute(raw []model.RawSignal, opps []model.Opportunity, unitPrice float64) Result {
	return Attributor{}.Attribute(raw, opps, unitPrice)
}

// Attribute reconciles raw and produces one position per held hash found in opps,
// sorted by yield descending. Hashes missing from opps are skipped and reported
// in Result.Missing.
func (a Attributor) Attribute(raw []model.RawSignal, opps []model.Opportunity, unitPrice float64) Result {
	obs := observe.OrNop(a.Observer)
	catalog := opportunity.ByHash(opps)
	price := unitPrice
	if math.IsNaN(price) || math.IsInf(price, 0) {
		price = 0
	}

	res := Result{Positions: []model.HolderPosition{}}
	for _, s := range Reconcile(raw) {
		opp, ok := catalog[s.IPFSHash]
		if !ok {
			res.Missing = append(res.Missing, s.IPFSHash)
			obs.PositionDropped(s.Holder, s.IPFSHash, s.Shape)
			continue
		}
		pos := attribute(s, opp, price)
		obs.PositionAttributed(pos, s.Shape)
		res.Positions = append(res.Positions, pos)
	}

	sort.SliceStable(res.Positions, func(i, j int) bool {
		return res.Positions[i].Yield > res.Positions[j].Yield
	})
	return res
}

func attribute(s model.RawSignal, opp model.Opportunity, price float64) model.HolderPosition {
	held := units.ToTokenUnits(s.SignalledTokensRaw)

	total := units.ToTokenUnits(s.DeploymentSignalledRaw)
	if total <= 0 {
		total = opp.SignalAmount
	}

	var portion float64
	if total > 0 {
		portion = math.Min(held/total, 1)
	}

	earnings := opp.CuratorShareValue * portion

	var yield float64
	if value := held * price; value > 0 {
		yield = earnings / value * 100
	}
	if math.IsNaN(yield) || math.IsInf(yield, 0) {
		yield = 0
	}

	versionID, ok := units.VersionID(s.Versions)
	if !ok {
		versionID = opp.VersionID
	}

	pos := model.HolderPosition{
		Holder:            s.Holder,
		IPFSHash:          s.IPFSHash,
		VersionID:         versionID,
		SignalAmount:      held,
		TotalSignal:       total,
		PortionOwned:      portion,
		EstimatedEarnings: earnings,
		Yield:             yield,
		WeeklyQueries:     opp.WeeklyQueries,
		WeeklyFees:        opp.WeeklyFees,
	}
	if s.Shape == model.ShapeDeployment {
		costBasis := units.ToTokenUnits(s.AverageCostBasisRaw)
		rewards := units.ToTokenUnits(s.RealizedRewardsRaw)
		pos.AverageCostBasis = &costBasis
		pos.RealizedRewards = &rewards
	}
	return pos
}
