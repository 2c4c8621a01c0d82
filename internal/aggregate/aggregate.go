package aggregate

import (
	"math"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// Portfolio berechnet wertgewichtete Summen über alle Positionen eines Halters
// Gibt bei leerer Eingabe eine vollständig genullte Zusammenfassung zurück
func Portfolio(positions []model.HolderPosition, unitPrice float64) model.PortfolioSummary {
	if len(positions) == 0 {
		return model.PortfolioSummary{}
	}

	price := unitPrice
	if !isFinite(price) || price < 0 {
		price = 0
	}

	var totalSignal, totalEarnings, weightedYield float64
	for _, p := range positions {
		totalSignal += p.SignalAmount
		totalEarnings += p.EstimatedEarnings
		weightedYield += p.Yield * p.Value(price)
	}

	totalValue := totalSignal * price

	var averageYield float64
	if totalValue > 0 {
		averageYield = weightedYield / totalValue
	}
	if !isFinite(averageYield) {
		averageYield = 0
	}

	return model.PortfolioSummary{
		TotalValue:        totalValue,
		TotalEarnings:     totalEarnings,
		AverageYield:      averageYield,
		TotalSignalAmount: totalSignal,
		PositionCount:     len(positions),
	}
}

// MeanYield berechnet den ungewichteten Durchschnitt der Positionsrenditen
func MeanYield(positions []model.HolderPosition) float64 {
	if len(positions) == 0 {
		return 0
	}
	var sum float64
	for _, p := range positions {
		sum += p.Yield
	}
	return sum / float64(len(positions))
}

// YieldStdDev berechnet die Populationsstandardabweichung der Positionsrenditen (Division durch N)
func YieldStdDev(positions []model.HolderPosition) float64 {
	if len(positions) == 0 {
		return 0
	}
	mean := MeanYield(positions)
	var variance float64
	for _, p := range positions {
		d := p.Yield - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(positions)))
}

// Concentration berechnet den Herfindahl-Hirschman-Index über die Signalanteile
// Gibt 0 zurück, wenn das Gesamtsignal 0 ist
func Concentration(positions []model.HolderPosition) float64 {
	var total float64
	for _, p := range positions {
		total += p.SignalAmount
	}
	if total <= 0 {
		return 0
	}

	var hhi float64
	for _, p := range positions {
		w := p.SignalAmount / total
		hhi += w * w
	}
	return hhi
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
