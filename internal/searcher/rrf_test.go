package searcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dshills/faqgate/pkg/types"
)

func result(id string, score float64) types.SearchResult {
	return types.SearchResult{Chunk: types.Chunk{ID: id, Content: "content " + id}, Score: score}
}

func resultIDs(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ID
	}
	return out
}

func TestFuseRRFRewardsAgreement(t *testing.T) {
	dense := []types.SearchResult{result("c1", 0.9), result("c2", 0.7)}
	bm25 := []types.SearchResult{result("c2", 5.2), result("c3", 3.1)}

	fused := FuseRRF(dense, bm25, 60)
	require.Len(t, fused, 3)
	assert.Equal(t, []string{"c2", "c1", "c3"}, resultIDs(fused))

	assert.InDelta(t, 1.0/61+1.0/60, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/60, fused[1].Score, 1e-12)
	assert.InDelta(t, 1.0/61, fused[2].Score, 1e-12)
}

func TestFuseRRFZeroIndexedRanks(t *testing.T) {
	fused := FuseRRF([]types.SearchResult{result("a", 1)}, nil, 60)
	require.Len(t, fused, 1)
	assert.Equal(t, 1.0/60, fused[0].Score)
}

func TestFuseRRFEdgeCases(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, nil, 60))

	only := FuseRRF(nil, []types.SearchResult{result("x", 3), result("y", 2)}, 0)
	assert.Equal(t, []string{"x", "y"}, resultIDs(only))
	assert.InDelta(t, 1.0/DefaultRRFConstant, only[0].Score, 1e-12)

	// equal fused scores keep first appearance order, list a first
	tied := FuseRRF([]types.SearchResult{result("a", 1)}, []types.SearchResult{result("b", 1)}, 60)
	assert.Equal(t, []string{"a", "b"}, resultIDs(tied))
}

func TestFuseRRFDeterminismProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		pool := rapid.SliceOfNDistinct(rapid.IntRange(0, 50), 0, 20, rapid.ID[int]).Draw(rt, "pool")
		split := rapid.IntRange(0, len(pool)).Draw(rt, "split")
		var a, b []types.SearchResult
		for i, id := range pool {
			r := result(fmt.Sprintf("c%d", id), 1)
			if i < split {
				a = append(a, r)
			} else {
				b = append(b, r)
			}
		}
		if len(a) > 0 && rapid.Bool().Draw(rt, "shared") {
			b = append([]types.SearchResult{a[0]}, b...)
		}

		first := FuseRRF(a, b, 60)
		second := FuseRRF(a, b, 60)
		if fmt.Sprint(resultIDs(first)) != fmt.Sprint(resultIDs(second)) {
			rt.Fatalf("non-deterministic fusion")
		}
		for i := 1; i < len(first); i++ {
			if first[i-1].Score < first[i].Score {
				rt.Fatalf("not sorted at %d", i)
			}
		}
	})
}

func TestFuseRRFBothListsBeatOneProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rank := rapid.IntRange(0, 10).Draw(rt, "rank")
		var a, b []types.SearchResult
		for i := 0; i < rank; i++ {
			a = append(a, result(fmt.Sprintf("a%d", i), 1))
			b = append(b, result(fmt.Sprintf("b%d", i), 1))
		}
		a = append(a, result("target", 1))

		single := scoreOf(FuseRRF(a, b, 60), "target")
		both := scoreOf(FuseRRF(a, append(b, result("target", 1)), 60), "target")
		if !(both > single) {
			rt.Fatalf("both=%v single=%v", both, single)
		}
	})
}

func scoreOf(results []types.SearchResult, id string) float64 {
	for _, r := range results {
		if r.Chunk.ID == id {
			return r.Score
		}
	}
	return -1
}
