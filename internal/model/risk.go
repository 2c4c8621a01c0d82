package model

// RiskLevel classifies yield dispersion across a holder's positions.
type RiskLevel string

const (
	RiskUnknown RiskLevel = "Unknown"
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
)

// DiversificationProfile describes concentration and dispersion of a holder's positions.
type DiversificationProfile struct {
	RiskLevel RiskLevel `json:"risk_level"`

	// Concentration is the Herfindahl-Hirschman Index over signal-weighted shares
	Concentration float64 `json:"concentration"`

	// YieldStdDev is the population standard deviation of position yields
	YieldStdDev float64 `json:"yield_std_dev"`

	DiversificationScore float64 `json:"diversification_score"`
	OptimizationScore    float64 `json:"optimization_score"`
}

// EmptyProfile is returned when there are no positions to analyze.
func EmptyProfile() DiversificationProfile {
	return DiversificationProfile{
		RiskLevel:     RiskUnknown,
		Concentration: 1.0,
	}
}
