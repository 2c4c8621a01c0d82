// Package telemetry projects trailing-window query-fee telemetry onto a yearly basis.
package telemetry

import (
	"math"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// DefaultSubPeriodsPerYear assumes daily sub-periods.
const DefaultSubPeriodsPerYear = 365

// Annualize averages windowTotal over the observed sub-periods (at least one)
// and scales the average to a year of subPeriodsPerYear sub-periods.
// Non-finite or negative totals project to zero.
func Annualize(windowTotal float64, subPeriodsObserved int, subPeriodsPerYear float64) float64 {
	if math.IsNaN(windowTotal) || math.IsInf(windowTotal, 0) || windowTotal <= 0 {
		return 0
	}
	if subPeriodsPerYear <= 0 {
		subPeriodsPerYear = DefaultSubPeriodsPerYear
	}
	observed := subPeriodsObserved
	if observed < 1 {
		observed = 1
	}
	return windowTotal / float64(observed) * subPeriodsPerYear
}

// Projection is the annualized view of one telemetry record.
type Projection struct {
	AnnualFees    float64
	AnnualQueries float64
}

// Daily returns the per-day figures of the projection.
func (p Projection) Daily() (queries, fees float64) {
	return p.AnnualQueries / DefaultSubPeriodsPerYear, p.AnnualFees / DefaultSubPeriodsPerYear
}

// Weekly returns seven days' worth of the daily figures.
func (p Projection) Weekly() (queries, fees float64) {
	q, f := p.Daily()
	return q * 7, f * 7
}

// Extrapolator annualizes telemetry records with a configurable year length.
type Extrapolator struct {
	SubPeriodsPerYear float64
}

// New returns an Extrapolator; a non-positive subPeriodsPerYear selects the default.
func New(subPeriodsPerYear float64) Extrapolator {
	if subPeriodsPerYear <= 0 {
		subPeriodsPerYear = DefaultSubPeriodsPerYear
	}
	return Extrapolator{SubPeriodsPerYear: subPeriodsPerYear}
}

// Project annualizes rec. A missing record (ok == false) projects to zero fees
// and zero queries.
func (e Extrapolator) Project(rec model.TelemetryRecord, ok bool) Projection {
	if !ok {
		return Projection{}
	}
	return Projection{
		AnnualFees:    Annualize(rec.FeesTotal, rec.SubPeriodsObserved, e.SubPeriodsPerYear),
		AnnualQueries: Annualize(rec.QueriesTotal, rec.SubPeriodsObserved, e.SubPeriodsPerYear),
	}
}

// Index keys telemetry records by ipfs hash. Later duplicates replace earlier ones.
func Index(records []model.TelemetryRecord) map[string]model.TelemetryRecord {
	out := make(map[string]model.TelemetryRecord, len(records))
	for _, r := range records {
		if r.IPFSHash == "" {
			continue
		}
		out[r.IPFSHash] = r
	}
	return out
}
