package aggregate

import (
	"math"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// RiskThresholds are the yield dispersion bounds, in percentage points, above
// which a portfolio is classified as high or medium risk.
type RiskThresholds struct {
	High   float64
	Medium float64
}

// DefaultRiskThresholds returns High 10 and Medium 5.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{High: 10, Medium: 5}
}

// Classify ordnet eine Standardabweichung einer Risikostufe zu
func (r RiskThresholds) Classify(stdDev float64) model.RiskLevel {
	switch {
	case stdDev > r.High:
		return model.RiskHigh
	case stdDev > r.Medium:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// Diversification berechnet Konzentration, Renditestreuung und die zusammengesetzten Scores
// mit den Standardschwellen
func Diversification(positions []model.HolderPosition) model.DiversificationProfile {
	return DefaultRiskThresholds().Diversification(positions)
}

// Diversification berechnet das Profil mit den Schwellen aus r
// Leere Eingabe liefert das Sentinel-Profil (Unknown, Konzentration 1.0)
func (r RiskThresholds) Diversification(positions []model.HolderPosition) model.DiversificationProfile {
	if len(positions) == 0 {
		return model.EmptyProfile()
	}

	hhi := Concentration(positions)
	stdDev := YieldStdDev(positions)

	divScore := math.Max(0, (1-hhi)*100)
	countScore := math.Min(100, float64(len(positions))*20)
	yieldScore := math.Min(100, MeanYield(positions)*5)
	optScore := (divScore + countScore + yieldScore) / 3

	return model.DiversificationProfile{
		RiskLevel:            r.Classify(stdDev),
		Concentration:        hhi,
		YieldStdDev:          stdDev,
		DiversificationScore: divScore,
		OptimizationScore:    optScore,
	}
}
