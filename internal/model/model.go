// Package model defines the core data structures for the curation signal optimizer.
package model

// DeploymentRecord is a snapshot of one deployment as reported by the signal registry.
// Token amounts are kept in their smallest-denomination string form until normalized.
type DeploymentRecord struct {
	// IPFSHash is the content-addressed identifier and primary key
	IPFSHash string `json:"ipfs_hash"`

	// SignalledTokensRaw is the total signal in the smallest token unit
	SignalledTokensRaw string `json:"signalled_tokens_raw"`

	// ReserveRatio is the bonding curve reserve ratio in [0,1]
	ReserveRatio float64 `json:"reserve_ratio"`

	// CuratorCount is the number of curator signals on the deployment
	CuratorCount int `json:"curator_count"`

	// Versions are opaque version descriptors, e.g. "<id>-<n>"
	Versions []string `json:"versions,omitempty"`
}

// TelemetryRecord holds trailing-window query-fee telemetry for one deployment.
type TelemetryRecord struct {
	IPFSHash string `json:"ipfs_hash"`

	// FeesTotal is the query fee revenue over the window, in tokens
	FeesTotal float64 `json:"fees_total"`

	// QueriesTotal is the number of queries served over the window
	QueriesTotal float64 `json:"queries_total"`

	// SubPeriodsObserved is the number of sub-periods (days) that reported data
	SubPeriodsObserved int `json:"sub_periods_observed"`
}

// Opportunity is the derived yield estimate for one deployment.
type Opportunity struct {
	IPFSHash  string `json:"ipfs_hash"`
	VersionID string `json:"version_id,omitempty"`

	// SignalAmount is the deployment's total signal in token units
	SignalAmount float64 `json:"signal_amount"`

	// SignalValue is SignalAmount priced at the unit price
	SignalValue float64 `json:"signal_value"`

	AnnualQueries float64 `json:"annual_queries"`

	// AnnualFees is the projected annual query fee revenue in tokens
	AnnualFees float64 `json:"annual_fees"`

	// CuratorShareTokens is the curators' annual share of fees, in tokens
	CuratorShareTokens float64 `json:"curator_share_tokens"`

	// CuratorShareValue is CuratorShareTokens priced at the unit price
	CuratorShareValue float64 `json:"curator_share_value"`

	// Yield is the annualized yield in percent
	Yield float64 `json:"yield"`

	ReserveRatio float64 `json:"reserve_ratio"`
	CuratorCount int     `json:"curator_count"`

	DailyQueries  float64 `json:"daily_queries"`
	DailyFees     float64 `json:"daily_fees"`
	WeeklyQueries float64 `json:"weekly_queries"`
	WeeklyFees    float64 `json:"weekly_fees"`
}

// HolderPosition is a holder's attributed share of one Opportunity.
type HolderPosition struct {
	Holder    string `json:"holder"`
	IPFSHash  string `json:"ipfs_hash"`
	VersionID string `json:"version_id,omitempty"`

	// SignalAmount is the holder's signal in token units
	SignalAmount float64 `json:"signal_amount"`

	// TotalSignal is the deployment's total signal in token units
	TotalSignal float64 `json:"total_signal"`

	// PortionOwned is SignalAmount / TotalSignal, 0 when TotalSignal is 0
	PortionOwned float64 `json:"portion_owned"`

	// EstimatedEarnings is the holder's annual earnings in value terms
	EstimatedEarnings float64 `json:"estimated_earnings"`

	// Yield is the position yield in percent
	Yield float64 `json:"yield"`

	WeeklyQueries float64 `json:"weekly_queries"`
	WeeklyFees    float64 `json:"weekly_fees"`

	// Carried through from the direct deployment signal shape only
	AverageCostBasis *float64 `json:"average_cost_basis,omitempty"`
	RealizedRewards  *float64 `json:"realized_rewards,omitempty"`
}

// Value returns the position's signal priced at unitPrice.
func (p HolderPosition) Value(unitPrice float64) float64 {
	return p.SignalAmount * unitPrice
}

// PortfolioSummary aggregates a holder's positions.
type PortfolioSummary struct {
	TotalValue        float64 `json:"total_value"`
	TotalEarnings     float64 `json:"total_earnings"`
	AverageYield      float64 `json:"average_yield"`
	TotalSignalAmount float64 `json:"total_signal_amount"`
	PositionCount     int     `json:"position_count"`
}

// Recommendation is a catalog entry scored against a holder's current yield profile.
type Recommendation struct {
	Opportunity
	SimilarityScore float64 `json:"similarity_score"`
}
