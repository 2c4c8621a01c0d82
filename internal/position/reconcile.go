// Package position attributes deployment opportunities to a holder's signal.
package position

import (
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// Reconcile merges a holder's raw signals into one record per ipfs hash.
//
// A direct deployment signal replaces a name signal for the same hash, since only
// the deployment shape carries cost basis and realized rewards. Within one shape the
// first record wins. Records with no resolvable hash are discarded. Output keeps the
// order in which each hash first appeared.
func Reconcile(raw []model.RawSignal) []model.RawSignal {
	out := make([]model.RawSignal, 0, len(raw))
	index := make(map[string]int, len(raw))

	for _, s := range raw {
		if s.IPFSHash == "" {
			continue
		}
		i, seen := index[s.IPFSHash]
		if !seen {
			index[s.IPFSHash] = len(out)
			out = append(out, s)
			continue
		}
		if out[i].Shape == model.ShapeName && s.Shape == model.ShapeDeployment {
			out[i] = s
		}
	}
	return out
}
