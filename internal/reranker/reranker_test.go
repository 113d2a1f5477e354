package reranker

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dshills/faqgate/internal/retry"
	"github.com/dshills/faqgate/pkg/types"
)

// mockEncoder returns logits from scoreFunc and records batch sizes.
type mockEncoder struct {
	scoreFunc func(pair QueryDocPair) float64
	batches   []int
	err       error
	short     bool
}

func (m *mockEncoder) Name() string { return "mock" }

func (m *mockEncoder) Score(_ context.Context, pairs []QueryDocPair) ([]float64, error) {
	m.batches = append(m.batches, len(pairs))
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = m.scoreFunc(p)
	}
	if m.short {
		return out[:len(out)-1], nil
	}
	return out, nil
}

func candidates(ids ...string) []types.SearchResult {
	out := make([]types.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = types.SearchResult{
			Chunk: types.Chunk{ID: id, Heading: "H-" + id, Content: "content " + id},
			Score: float64(len(ids) - i),
		}
	}
	return out
}

func TestSigmoid(t *testing.T) {
	assert.Equal(t, 0.5, Sigmoid(0))
	assert.InDelta(t, 0.7311, Sigmoid(1), 1e-4)
	assert.InDelta(t, 0.2689, Sigmoid(-1), 1e-4)
	assert.Equal(t, 1.0, Sigmoid(1000))
	assert.Equal(t, 0.0, Sigmoid(-1000))
	assert.False(t, math.IsNaN(Sigmoid(-1e308)))
}

func TestSigmoidBoundedProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		x := rapid.Float64().Draw(rt, "x")
		if math.IsNaN(x) {
			return
		}
		s := Sigmoid(x)
		if s < 0 || s > 1 || math.IsNaN(s) {
			rt.Fatalf("sigmoid(%v) = %v", x, s)
		}
	})
}

func TestRerank(t *testing.T) {
	ctx := context.Background()
	logits := map[string]float64{"a": -2, "b": 3, "c": 0.5, "d": 3}
	enc := &mockEncoder{scoreFunc: func(p QueryDocPair) float64 {
		for id, l := range logits {
			if p.Document == "H-"+id+"\ncontent "+id {
				return l
			}
		}
		return -10
	}}
	r, err := New(enc, 2, nil)
	require.NoError(t, err)

	got, err := r.Rerank(ctx, "query", candidates("a", "b", "c", "d"), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "b", got[0].Chunk.ID)
	assert.Equal(t, "d", got[1].Chunk.ID, "ties keep candidate order")
	assert.Equal(t, "c", got[2].Chunk.ID)
	assert.InDelta(t, Sigmoid(3), got[0].Score, 1e-12)
	assert.Equal(t, []int{2, 2}, enc.batches)
}

func TestRerankEdgeCases(t *testing.T) {
	ctx := context.Background()
	enc := &mockEncoder{scoreFunc: func(QueryDocPair) float64 { return 0 }}
	r, err := New(enc, 0, nil)
	require.NoError(t, err)

	got, err := r.Rerank(ctx, "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Rerank(ctx, "q", candidates("a"), 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Rerank(ctx, "q", candidates("a", "b"), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = New(nil, 1, nil)
	assert.ErrorIs(t, err, ErrNoEncoder)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = New(enc, -4, nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRerankProviderFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("encoder error", func(t *testing.T) {
		r, _ := New(&mockEncoder{err: assert.AnError}, 0, nil)
		_, err := r.Rerank(ctx, "q", candidates("a"), 1)
		assert.ErrorIs(t, err, types.ErrProviderFailure)
	})

	t.Run("score count mismatch", func(t *testing.T) {
		r, _ := New(&mockEncoder{short: true, scoreFunc: func(QueryDocPair) float64 { return 1 }}, 0, nil)
		_, err := r.Rerank(ctx, "q", candidates("a", "b"), 2)
		assert.ErrorIs(t, err, ErrScoringFailed)
	})

	t.Run("NaN logits", func(t *testing.T) {
		r, _ := New(&mockEncoder{scoreFunc: func(QueryDocPair) float64 { return math.NaN() }}, 0, nil)
		_, err := r.Rerank(ctx, "q", candidates("a"), 1)
		assert.ErrorIs(t, err, types.ErrProviderFailure)
	})
}

func TestRerankOutputProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(rt, "n")
		logits := make([]float64, n)
		for i := range logits {
			logits[i] = rapid.Float64Range(-50, 50).Draw(rt, "logit")
		}
		pos := 0
		enc := &mockEncoder{scoreFunc: func(QueryDocPair) float64 {
			l := logits[pos]
			pos++
			return l
		}}
		r, _ := New(enc, rapid.IntRange(1, 10).Draw(rt, "batch"), nil)

		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('A' + i))
		}
		k := rapid.IntRange(1, 50).Draw(rt, "k")
		got, err := r.Rerank(context.Background(), "q", candidates(ids...), k)
		if err != nil {
			rt.Fatalf("rerank: %v", err)
		}
		if len(got) != min(n, k) {
			rt.Fatalf("len %d, want %d", len(got), min(n, k))
		}
		for i, res := range got {
			if res.Score < 0 || res.Score > 1 {
				rt.Fatalf("score out of range: %v", res.Score)
			}
			if i > 0 && got[i-1].Score < res.Score {
				rt.Fatalf("not sorted at %d", i)
			}
		}
	})
}

func TestLexicalCrossEncoder(t *testing.T) {
	enc := NewLexicalCrossEncoder()
	scores, err := enc.Score(context.Background(), []QueryDocPair{
		{Query: "reset password", Document: "Password reset\nReset your password from the account page"},
		{Query: "reset password", Document: "VPN\nInstall the VPN client"},
		{Query: "reset password", Document: "Accounts\nTo reset, open settings. Your password rules are listed below."},
		{Query: "?!", Document: "anything"},
	})
	require.NoError(t, err)
	require.Len(t, scores, 4)

	assert.Greater(t, scores[0], scores[2])
	assert.Greater(t, scores[2], scores[1])
	assert.Greater(t, Sigmoid(scores[0]), 0.9)
	assert.Less(t, Sigmoid(scores[1]), 0.1)
	assert.Equal(t, enc.Bias, scores[3])
}

func TestLexicalCrossEncoderIgnoresStopWords(t *testing.T) {
	enc := NewLexicalCrossEncoder()
	doc := "Deploy\nUse kubectl apply"
	scores, err := enc.Score(context.Background(), []QueryDocPair{
		{Query: "how do I deploy", Document: doc},
		{Query: "deploy", Document: doc},
		{Query: "how do I deploy with kubectl", Document: doc},
		{Query: "how do I", Document: doc},
	})
	require.NoError(t, err)

	assert.Equal(t, scores[1], scores[0])
	assert.Greater(t, Sigmoid(scores[0]), 0.9)
	assert.Greater(t, Sigmoid(scores[2]), 0.9)
	// nothing but stop words is scored on those words, none of which match
	assert.Less(t, Sigmoid(scores[3]), 0.1)
}

func TestContentTerms(t *testing.T) {
	assert.Equal(t, []string{"deploy", "kubectl"}, contentTerms([]string{"how", "do", "i", "deploy", "with", "kubectl"}))
	assert.Equal(t, []string{"how", "do", "i"}, contentTerms([]string{"how", "do", "i"}))
	assert.Empty(t, contentTerms(nil))
}

func TestProximity(t *testing.T) {
	assert.Equal(t, 1.0, proximity([]string{"a", "b"}, []string{"a", "b"}))
	assert.Less(t, proximity([]string{"a", "b"}, []string{"a", "x", "x", "b"}), 1.0)
	assert.Equal(t, 0.0, proximity([]string{"a", "b"}, []string{"a", "x"}))
	assert.Equal(t, 1.0, proximity([]string{"a"}, []string{"x", "a"}))
	assert.Equal(t, 0.0, proximity([]string{"a"}, []string{"x"}))
}

func TestHTTPCrossEncoder(t *testing.T) {
	ctx := context.Background()

	t.Run("returns logits in input order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rerank", r.URL.Path)
			var req struct {
				Query     string   `json:"query"`
				Texts     []string `json:"texts"`
				RawScores bool     `json:"raw_scores"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.RawScores)
			assert.Equal(t, "deploy", req.Query)

			// sorted by score descending, as TEI does
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"index": 1, "score": 4.5},
				{"index": 0, "score": -1.25},
			})
		}))
		defer server.Close()

		enc, err := NewHTTPCrossEncoder(HTTPConfig{URL: server.URL + "/"})
		require.NoError(t, err)

		scores, err := enc.Score(ctx, []QueryDocPair{
			{Query: "deploy", Document: "one"},
			{Query: "deploy", Document: "two"},
		})
		require.NoError(t, err)
		assert.Equal(t, []float64{-1.25, 4.5}, scores)
	})

	t.Run("http errors are provider failures", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		enc, err := NewHTTPCrossEncoder(HTTPConfig{URL: server.URL, Retry: fastRetry()})
		require.NoError(t, err)
		r, err := New(enc, 0, nil)
		require.NoError(t, err)

		_, err = r.Rerank(ctx, "q", candidates("a"), 1)
		assert.ErrorIs(t, err, types.ErrProviderFailure)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, "bad input", http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		enc, err := NewHTTPCrossEncoder(HTTPConfig{URL: server.URL, Retry: fastRetry()})
		require.NoError(t, err)
		_, err = enc.Score(ctx, []QueryDocPair{{Query: "q", Document: "a"}})
		assert.ErrorIs(t, err, ErrScoringFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("url required", func(t *testing.T) {
		_, err := NewHTTPCrossEncoder(HTTPConfig{})
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}
