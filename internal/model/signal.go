package model

// SignalShape tags which registry representation a raw signal came from.
type SignalShape int

const (
	// ShapeDeployment is a signal placed directly on a deployment
	ShapeDeployment SignalShape = iota
	// ShapeName is a signal placed on a named subgraph, resolved to its current deployment
	ShapeName
)

func (s SignalShape) String() string {
	switch s {
	case ShapeDeployment:
		return "deployment"
	case ShapeName:
		return "name"
	default:
		return "unknown"
	}
}

// RawSignal is a holder's signal record as returned by the registry, before
// reconciliation. Only the position package consumes it.
type RawSignal struct {
	Shape  SignalShape
	ID     string
	Holder string

	IPFSHash string

	// SignalledTokensRaw is the holder's signal in the smallest token unit
	SignalledTokensRaw string

	// DeploymentSignalledRaw is the deployment's total signal as embedded in the record
	DeploymentSignalledRaw string

	Versions []string

	// Only present on ShapeDeployment records
	AverageCostBasisRaw string
	RealizedRewardsRaw  string

	// DisplayName is only present on ShapeName records
	DisplayName string
}
