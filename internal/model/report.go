package model

import "time"

// PriceQuote is a unit price along with the source that produced it.
type PriceQuote struct {
	Price  float64 `json:"price"`
	Source string  `json:"source"`
}

// AllocationResult is the outcome of distributing capital across the catalog.
type AllocationResult struct {
	// Allocations maps ipfs hash to allocated token units
	Allocations map[string]float64 `json:"allocations"`

	TotalAllocated    float64 `json:"total_allocated"`
	ExpectedYield     float64 `json:"expected_yield"`
	ExpectedEarnings  float64 `json:"expected_earnings"`
	EntryCosts        float64 `json:"entry_costs"`
	Iterations        int     `json:"iterations"`
	UnallocatedTokens float64 `json:"unallocated_tokens"`
}

// Report is the full output of one analysis run.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Holder      string    `json:"holder,omitempty"`

	Price PriceQuote `json:"price"`

	Opportunities   []Opportunity          `json:"opportunities"`
	Positions       []HolderPosition       `json:"positions"`
	Summary         PortfolioSummary       `json:"summary"`
	Diversification DiversificationProfile `json:"diversification"`
	Recommendations []Recommendation       `json:"recommendations"`

	// MissingDeployments lists held hashes absent from the catalog
	MissingDeployments []string `json:"missing_deployments,omitempty"`

	// Degraded lists the external sources that failed and were replaced by fallbacks
	Degraded []string `json:"degraded,omitempty"`
}
