package types

import (
	"math"
	"sort"
)

// SearchResult pairs a chunk with the score it earned in one ranking.
// Score semantics depend on the producer: inner product for the dense
// index, BM25 for the keyword index, RRF for fusion and a sigmoid
// probability for the reranker. Higher is always better.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Validate checks the score is a usable number.
func (sr SearchResult) Validate() error {
	if math.IsNaN(sr.Score) || math.IsInf(sr.Score, 0) {
		return ErrInvalidScoreRange
	}
	return nil
}

// SortByScore orders results by descending score. Equal scores keep their
// incoming order.
func SortByScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// Truncate returns at most k results. k <= 0 yields an empty slice.
func Truncate(results []SearchResult, k int) []SearchResult {
	if k <= 0 {
		return []SearchResult{}
	}
	if len(results) > k {
		return results[:k]
	}
	return results
}

// Scores extracts the score column.
func Scores(results []SearchResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}
