package aggregate

import (
	"math"
	"sort"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// DefaultRecommendationLimit is used when a non-positive limit is requested.
const DefaultRecommendationLimit = 5

// Recommend schlägt Katalogeinträge vor, die der Halter noch nicht besitzt
// Bewertet nach Nähe zur aktuellen Durchschnittsrendite: 100 - |yield - avg|
// Ohne Positionen werden die ersten limit Einträge des Katalogs zurückgegeben
func Recommend(positions []model.HolderPosition, catalog []model.Opportunity, limit int) []model.Recommendation {
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}

	if len(positions) == 0 {
		n := min(limit, len(catalog))
		out := make([]model.Recommendation, 0, n)
		for _, o := range catalog[:n] {
			out = append(out, model.Recommendation{Opportunity: o})
		}
		return out
	}

	held := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		held[p.IPFSHash] = struct{}{}
	}
	avg := MeanYield(positions)

	candidates := make([]model.Recommendation, 0, len(catalog))
	for _, o := range catalog {
		if _, ok := held[o.IPFSHash]; ok {
			continue
		}
		score := 100 - math.Abs(o.Yield-avg)
		if !isFinite(score) {
			score = 0
		}
		candidates = append(candidates, model.Recommendation{Opportunity: o, SimilarityScore: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SimilarityScore > candidates[j].SimilarityScore
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
