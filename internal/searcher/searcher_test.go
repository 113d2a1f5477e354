package searcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/embedder"
	"github.com/dshills/faqgate/internal/index"
	"github.com/dshills/faqgate/internal/reranker"
	"github.com/dshills/faqgate/pkg/types"
)

// mockEmbedder implements the Embedder interface for testing
type mockEmbedder struct {
	generateFunc func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
	calls        int
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.calls++
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

// fixedVector returns a mock that embeds every query as vec.
func fixedVector(vec ...float32) *mockEmbedder {
	return &mockEmbedder{generateFunc: func(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		return &embedder.Embedding{Vector: vec, Dimension: len(vec)}, nil
	}}
}

func testStore(t *testing.T) *index.Store {
	t.Helper()
	chunks := []types.Chunk{
		{ID: "c1", Heading: "Deploy", Content: "Use kubectl apply"},
		{ID: "c2", Heading: "Rollback", Content: "Rollback a deploy with kubectl rollout undo"},
		{ID: "c3", Heading: "VPN", Content: "Install the VPN client"},
	}
	vectors := [][]float32{
		{0.9, 0.4359, 0},
		{0.7, 0.7141, 0},
		{0, 0, 1},
	}
	snap, err := index.NewSnapshot(chunks, vectors, "h")
	require.NoError(t, err)
	store := index.NewStore()
	store.Publish(snap)
	return store
}

func newSearcher(t *testing.T, store *index.Store, emb embedder.Embedder, rr *reranker.Reranker, mode Mode, cfg Config, logger *zap.Logger) *Searcher {
	t.Helper()
	s, err := NewSearcher(store, emb, rr, mode, cfg, logger)
	require.NoError(t, err)
	return s
}

func TestNewSearcherRejectsNegativeSizes(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"top_k", Config{TopK: -3}},
		{"semantic_top_k", Config{SemanticTopK: -1}},
		{"bm25_top_k", Config{BM25TopK: -1}},
		{"retrieval_top_k", Config{RetrievalTopK: -1}},
		{"rerank_top_k", Config{RerankTopK: -2}},
		{"rrf constant", Config{RRFConstant: -60}},
		{"cache_size", Config{CacheSize: -1}},
		{"cache ttl", Config{CacheTTL: -time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSearcher(testStore(t), fixedVector(1, 0, 0), nil, Semantic{}, tc.cfg, nil)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, types.ErrValidation)
			assert.Contains(t, err.Error(), tc.name)
		})
	}

	t.Run("zero takes defaults", func(t *testing.T) {
		s := newSearcher(t, testStore(t), fixedVector(1, 0, 0), nil, Semantic{}, Config{}, nil)
		assert.Equal(t, DefaultConfig().TopK, s.cfg.TopK)
		assert.Equal(t, DefaultConfig().RRFConstant, s.cfg.RRFConstant)
	})
}

func TestSearcherSemantic(t *testing.T) {
	s := newSearcher(t, testStore(t), fixedVector(1, 0, 0), nil, Semantic{}, Config{TopK: 2}, nil)

	ret, err := s.Retrieve(context.Background(), "how do I deploy")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, resultIDs(ret.Results))
	assert.InDelta(t, 0.9, ret.Results[0].Score, 1e-6)
	assert.Equal(t, []float32{1, 0, 0}, ret.QueryVector)
	assert.Equal(t, Semantic{}, ret.Mode)
	assert.Equal(t, 2, ret.DenseResults)
	assert.False(t, ret.CacheHit)
}

func TestSearcherHybrid(t *testing.T) {
	s := newSearcher(t, testStore(t), fixedVector(1, 0, 0), nil, Hybrid{}, Config{TopK: 3}, nil)

	ret, err := s.Retrieve(context.Background(), "rollout undo")
	require.NoError(t, err)
	require.Len(t, ret.Results, 3)

	// c2 is second by vector but the only keyword hit; agreement wins
	assert.Equal(t, []string{"c2", "c1", "c3"}, resultIDs(ret.Results))
	assert.Equal(t, 3, ret.DenseResults)
	assert.Equal(t, 1, ret.KeywordResults)
	for _, r := range ret.Results {
		assert.LessOrEqual(t, r.Score, 2.0/DefaultRRFConstant)
	}
}

func TestSearcherReranked(t *testing.T) {
	ctx := context.Background()
	rr, err := reranker.New(reranker.NewLexicalCrossEncoder(), 0, nil)
	require.NoError(t, err)

	s := newSearcher(t, testStore(t), fixedVector(0, 0, 1), rr, Reranked{Base: Semantic{}}, Config{RerankTopK: 2}, nil)

	ret, err := s.Retrieve(ctx, "kubectl rollout undo")
	require.NoError(t, err)
	require.Len(t, ret.Results, 2)
	assert.Equal(t, "c2", ret.Results[0].Chunk.ID)
	for _, r := range ret.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	hybridBase := newSearcher(t, testStore(t), fixedVector(0, 0, 1), rr, ModeFromFlags(true, true), Config{RerankTopK: 1}, nil)
	ret, err = hybridBase.Retrieve(ctx, "kubectl rollout undo")
	require.NoError(t, err)
	assert.Len(t, ret.Results, 1)
	assert.Positive(t, ret.KeywordResults)
}

func TestSearcherValidation(t *testing.T) {
	ctx := context.Background()

	s := newSearcher(t, testStore(t), fixedVector(1, 0, 0), nil, Semantic{}, Config{}, nil)
	_, err := s.Retrieve(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = s.Search(ctx, SearchRequest{Query: "q", Mode: Reranked{}})
	assert.ErrorIs(t, err, ErrNoReranker)

	nilEmb := newSearcher(t, testStore(t), nil, nil, Semantic{}, Config{}, nil)
	_, err = nilEmb.Retrieve(ctx, "q")
	assert.Error(t, err)
}

func TestSearcherProviderFailurePropagates(t *testing.T) {
	failing := &mockEmbedder{generateFunc: func(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		return nil, embedder.ErrProviderFailed
	}}
	s := newSearcher(t, testStore(t), failing, nil, Semantic{}, Config{}, nil)

	_, err := s.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderFailure))
}

func TestSearcherEmptyIndex(t *testing.T) {
	s := newSearcher(t, index.NewStore(), fixedVector(1, 0, 0), nil, Hybrid{}, Config{}, nil)
	ret, err := s.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, ret.Results)
	assert.Equal(t, "empty", ret.Generation)
}

func TestSearcherCache(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	emb := fixedVector(1, 0, 0)
	s := newSearcher(t, store, emb, nil, Semantic{}, Config{}, nil)

	first, err := s.Retrieve(ctx, "deploy")
	require.NoError(t, err)
	second, err := s.Retrieve(ctx, "deploy")
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, resultIDs(first.Results), resultIDs(second.Results))

	t.Run("cached copies are independent", func(t *testing.T) {
		second.Results[0].Chunk.ID = "mutated"
		third, err := s.Retrieve(ctx, "deploy")
		require.NoError(t, err)
		assert.Equal(t, "c1", third.Results[0].Chunk.ID)
	})

	t.Run("new generation misses", func(t *testing.T) {
		snap, err := index.NewSnapshot([]types.Chunk{{ID: "n1", Content: "new"}}, [][]float32{{1, 0, 0}}, "h2")
		require.NoError(t, err)
		store.Publish(snap)

		ret, err := s.Retrieve(ctx, "deploy")
		require.NoError(t, err)
		assert.False(t, ret.CacheHit)
		assert.Equal(t, []string{"n1"}, resultIDs(ret.Results))
	})

	t.Run("invalidate purges", func(t *testing.T) {
		assert.Positive(t, s.CacheLen())
		s.InvalidateCache()
		assert.Equal(t, 0, s.CacheLen())
	})

	t.Run("uncached requests bypass", func(t *testing.T) {
		before := emb.calls
		_, err := s.Search(ctx, SearchRequest{Query: "deploy"})
		require.NoError(t, err)
		_, err = s.Search(ctx, SearchRequest{Query: "deploy"})
		require.NoError(t, err)
		assert.Equal(t, before+2, emb.calls)
	})
}

func TestSearcherCacheTTL(t *testing.T) {
	emb := fixedVector(1, 0, 0)
	s := newSearcher(t, testStore(t), emb, nil, Semantic{}, Config{CacheTTL: time.Nanosecond}, nil)

	_, err := s.Retrieve(context.Background(), "deploy")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	ret, err := s.Retrieve(context.Background(), "deploy")
	require.NoError(t, err)
	assert.False(t, ret.CacheHit)
	assert.Equal(t, 2, emb.calls)
}

func TestSearchLimitOverride(t *testing.T) {
	s := newSearcher(t, testStore(t), fixedVector(1, 0, 0), nil, Semantic{}, Config{TopK: 1}, nil)
	ret, err := s.Search(context.Background(), SearchRequest{Query: "q", Limit: 3, Mode: Hybrid{}})
	require.NoError(t, err)
	assert.Len(t, ret.Results, 3)
	assert.Equal(t, Hybrid{}, ret.Mode)
}
