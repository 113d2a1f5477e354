package index

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/dshills/faqgate/pkg/types"
)

// DenseIndex performs exact inner-product search over unit vectors.
// Build replaces the whole index atomically; concurrent searches see
// either the old or the new contents, never a mix.
type DenseIndex struct {
	state atomic.Pointer[denseState]
}

type denseState struct {
	chunks  []types.Chunk
	vectors [][]float32
	dim     int
}

type candidate struct {
	pos   int
	score float64
}

// NewDenseIndex returns an empty index.
func NewDenseIndex() *DenseIndex {
	d := &DenseIndex{}
	d.state.Store(&denseState{})
	return d
}

// Build replaces the index contents. chunks[i] is described by vectors[i].
func (d *DenseIndex) Build(chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", ErrSizeMismatch, len(chunks), len(vectors))
	}
	if err := types.ValidateChunks(chunks); err != nil {
		return err
	}

	dim := 0
	vecCopy := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", ErrDimensionMismatch, i)
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		vecCopy[i] = append([]float32(nil), v...)
	}

	d.state.Store(&denseState{
		chunks:  append([]types.Chunk(nil), chunks...),
		vectors: vecCopy,
		dim:     dim,
	})
	return nil
}

// Search returns up to k chunks ordered by descending inner product with
// query. Ties keep insertion order. An empty index yields no results.
func (d *DenseIndex) Search(query []float32, k int) ([]types.SearchResult, error) {
	st := d.state.Load()
	if len(st.chunks) == 0 || k <= 0 {
		return []types.SearchResult{}, nil
	}
	if len(query) != st.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), st.dim)
	}

	candidates := make([]candidate, len(st.vectors))
	for i, v := range st.vectors {
		candidates[i] = candidate{pos: i, score: InnerProduct(query, v)}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := min(k, len(candidates))
	results := make([]types.SearchResult, n)
	for i := 0; i < n; i++ {
		results[i] = types.SearchResult{
			Chunk: st.chunks[candidates[i].pos],
			Score: candidates[i].score,
		}
	}
	return results, nil
}

// Size returns the number of indexed chunks.
func (d *DenseIndex) Size() int {
	return len(d.state.Load().chunks)
}

// Dimension returns the vector dimension, or 0 for an empty index.
func (d *DenseIndex) Dimension() int {
	return d.state.Load().dim
}

// InnerProduct computes the dot product of a and b in float64.
func InnerProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
