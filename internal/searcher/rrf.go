package searcher

import (
	"sort"

	"github.com/dshills/faqgate/pkg/types"
)

// DefaultRRFConstant is the damping constant from the RRF literature.
const DefaultRRFConstant = 60.0

// FuseRRF merges two rankings with Reciprocal Rank Fusion:
//
//	score(d) = sum over lists of 1/(k + rank), rank 0-indexed
//
// Chunks are keyed by ID. Only rank positions matter, so dense and BM25
// scores need no normalization. Ties keep first-appearance order, list a
// before list b. k <= 0 uses DefaultRRFConstant.
func FuseRRF(a, b []types.SearchResult, k float64) []types.SearchResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type fused struct {
		chunk types.Chunk
		score float64
	}
	order := make([]string, 0, len(a)+len(b))
	scores := make(map[string]*fused, len(a)+len(b))

	add := func(list []types.SearchResult) {
		for rank, r := range list {
			entry, ok := scores[r.Chunk.ID]
			if !ok {
				entry = &fused{chunk: r.Chunk}
				scores[r.Chunk.ID] = entry
				order = append(order, r.Chunk.ID)
			}
			entry.score += 1.0 / (k + float64(rank))
		}
	}
	add(a)
	add(b)

	results := make([]types.SearchResult, len(order))
	for i, id := range order {
		results[i] = types.SearchResult{Chunk: scores[id].chunk, Score: scores[id].score}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
