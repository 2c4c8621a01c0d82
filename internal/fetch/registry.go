package fetch

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
	tracing "github.com/rickydata-indexer/curation-signal-optimizer/internal/otel"
)

const deploymentsQuery = `query Deployments($first: Int!, $minSignal: BigInt!) {
  subgraphDeployments(
    first: $first
    orderBy: signalledTokens
    orderDirection: desc
    where: { signalledTokens_gt: $minSignal }
  ) {
    ipfsHash
    signalledTokens
    reserveRatio
    curatorSignals { id }
    versions { id }
  }
}`

const holderSignalsQuery = `query HolderSignals($curator: String!) {
  curator(id: $curator) {
    nameSignals(first: 1000) {
      signalledTokens
      subgraph {
        id
        metadata { displayName }
        currentVersion {
          id
          subgraphDeployment { id ipfsHash signalledTokens }
        }
      }
    }
    signals(first: 1000) {
      id
      signalledTokens
      averageCostBasis
      realizedRewards
      subgraphDeployment {
        id
        ipfsHash
        signalledTokens
        versions { id }
      }
    }
  }
}`

// ppm is the scale reserve ratios are reported in by the registry
const ppm = 1_000_000

type versionRef struct {
	ID string `json:"id"`
}

type deploymentRef struct {
	ID              string       `json:"id"`
	IPFSHash        string       `json:"ipfsHash"`
	SignalledTokens string       `json:"signalledTokens"`
	Versions        []versionRef `json:"versions"`
}

// RegistryClient queries the on-chain signal registry
type RegistryClient struct {
	gql       *GraphQLClient
	minSignal string
	pageSize  int
}

// NewRegistryClient creates a registry client. minSignalRaw is the exclusive lower
// bound on deployment signal in the smallest token unit.
func NewRegistryClient(url, minSignalRaw string, pageSize int, opts ...Option) *RegistryClient {
	if minSignalRaw == "" {
		minSignalRaw = "0"
	}
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	return &RegistryClient{
		gql:       NewGraphQLClient(url, opts...),
		minSignal: minSignalRaw,
		pageSize:  pageSize,
	}
}

// Deployments returns the deployment catalog ordered by signal, largest first
func (c *RegistryClient) Deployments(ctx context.Context) ([]model.DeploymentRecord, error) {
	ctx, span := tracing.Tracer().Start(ctx, "fetch.registry.deployments")
	defer span.End()

	var data struct {
		SubgraphDeployments []struct {
			IPFSHash        string       `json:"ipfsHash"`
			SignalledTokens string       `json:"signalledTokens"`
			ReserveRatio    flexNumber   `json:"reserveRatio"`
			CuratorSignals  []versionRef `json:"curatorSignals"`
			Versions        []versionRef `json:"versions"`
		} `json:"subgraphDeployments"`
	}

	logrus.Debugf("Fetching deployment catalog (first %d)", c.pageSize)
	err := c.gql.Query(ctx, deploymentsQuery, map[string]any{
		"first":     c.pageSize,
		"minSignal": c.minSignal,
	}, &data)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	records := make([]model.DeploymentRecord, 0, len(data.SubgraphDeployments))
	for _, d := range data.SubgraphDeployments {
		records = append(records, model.DeploymentRecord{
			IPFSHash:           d.IPFSHash,
			SignalledTokensRaw: d.SignalledTokens,
			ReserveRatio:       reserveRatio(float64(d.ReserveRatio)),
			CuratorCount:       len(d.CuratorSignals),
			Versions:           versionIDs(d.Versions),
		})
	}
	span.SetAttributes(attribute.Int("deployments", len(records)))
	return records, nil
}

// HolderSignals returns the holder's signals in both registry shapes, direct
// deployment signals first. holder must already be normalized.
func (c *RegistryClient) HolderSignals(ctx context.Context, holder string) ([]model.RawSignal, error) {
	ctx, span := tracing.Tracer().Start(ctx, "fetch.registry.holder_signals")
	defer span.End()

	var data struct {
		Curator *struct {
			NameSignals []struct {
				SignalledTokens string `json:"signalledTokens"`
				Subgraph        struct {
					ID       string `json:"id"`
					Metadata *struct {
						DisplayName string `json:"displayName"`
					} `json:"metadata"`
					CurrentVersion *struct {
						ID                 string         `json:"id"`
						SubgraphDeployment *deploymentRef `json:"subgraphDeployment"`
					} `json:"currentVersion"`
				} `json:"subgraph"`
			} `json:"nameSignals"`
			Signals []struct {
				ID                 string         `json:"id"`
				SignalledTokens    string         `json:"signalledTokens"`
				AverageCostBasis   string         `json:"averageCostBasis"`
				RealizedRewards    string         `json:"realizedRewards"`
				SubgraphDeployment *deploymentRef `json:"subgraphDeployment"`
			} `json:"signals"`
		} `json:"curator"`
	}

	if err := c.gql.Query(ctx, holderSignalsQuery, map[string]any{"curator": holder}, &data); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if data.Curator == nil {
		logrus.WithField("holder", holder).Debug("Holder has no curator record")
		return nil, nil
	}

	cur := data.Curator
	signals := make([]model.RawSignal, 0, len(cur.Signals)+len(cur.NameSignals))
	for _, s := range cur.Signals {
		if s.SubgraphDeployment == nil {
			continue
		}
		signals = append(signals, model.RawSignal{
			Shape:                  model.ShapeDeployment,
			ID:                     s.ID,
			Holder:                 holder,
			IPFSHash:               s.SubgraphDeployment.IPFSHash,
			SignalledTokensRaw:     s.SignalledTokens,
			DeploymentSignalledRaw: s.SubgraphDeployment.SignalledTokens,
			Versions:               versionIDs(s.SubgraphDeployment.Versions),
			AverageCostBasisRaw:    s.AverageCostBasis,
			RealizedRewardsRaw:     s.RealizedRewards,
		})
	}
	for _, s := range cur.NameSignals {
		v := s.Subgraph.CurrentVersion
		if v == nil || v.SubgraphDeployment == nil {
			continue
		}
		raw := model.RawSignal{
			Shape:                  model.ShapeName,
			ID:                     holder + "-" + v.SubgraphDeployment.IPFSHash,
			Holder:                 holder,
			IPFSHash:               v.SubgraphDeployment.IPFSHash,
			SignalledTokensRaw:     s.SignalledTokens,
			DeploymentSignalledRaw: v.SubgraphDeployment.SignalledTokens,
		}
		if v.ID != "" {
			raw.Versions = []string{v.ID}
		}
		if s.Subgraph.Metadata != nil {
			raw.DisplayName = s.Subgraph.Metadata.DisplayName
		}
		signals = append(signals, raw)
	}

	logrus.WithFields(logrus.Fields{
		"holder":             holder,
		"deployment_signals": len(cur.Signals),
		"name_signals":       len(cur.NameSignals),
	}).Debug("Fetched holder signals")
	span.SetAttributes(attribute.Int("signals", len(signals)))
	return signals, nil
}

func versionIDs(refs []versionRef) []string {
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}

// reserveRatio converts a parts-per-million ratio to a fraction. Values already
// in [0,1] pass through.
func reserveRatio(v float64) float64 {
	if v > 1 {
		return v / ppm
	}
	return v
}
