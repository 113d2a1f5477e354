package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/faqgate/internal/embedder"
)

// mapEmbedder returns a fixed vector per text and counts calls.
type mapEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	err     error
}

func (m *mapEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vec, ok := m.vectors[req.Text]
	if !ok {
		vec = []float32{0, 0, 1}
	}
	return &embedder.Embedding{Vector: vec, Dimension: len(vec)}, nil
}

func (m *mapEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	resp := &embedder.BatchEmbeddingResponse{}
	for _, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		resp.Embeddings = append(resp.Embeddings, emb)
	}
	return resp, nil
}

func (m *mapEmbedder) Dimension() int   { return 3 }
func (m *mapEmbedder) Provider() string { return "map" }
func (m *mapEmbedder) Model() string    { return "map" }
func (m *mapEmbedder) Close() error     { return nil }

func (m *mapEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestCache(now time.Time) *Cache {
	c := NewCache(24*time.Hour, nil)
	c.now = func() time.Time { return now }
	return c
}

func TestMatchKeywords(t *testing.T) {
	assert.Equal(t, []string{"down", "github"}, MatchKeywords("GitHub is DOWN again"))
	assert.Equal(t, []string{"main branch", "build"}, MatchKeywords("the main branch build is red"))
	assert.Empty(t, MatchKeywords("lunch is here"))
}

func TestFromMessage(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	u, ok := FromMessage("C1", "171.1", "Deploy pipeline failing", "https://x/1", at)
	require.True(t, ok)
	assert.Equal(t, []string{"failing", "deploy"}, u.Keywords)
	assert.Equal(t, at, u.PostedAt)

	_, ok = FromMessage("C1", "171.2", "happy friday", "", at)
	assert.False(t, ok)
	_, ok = FromMessage("C1", "", "outage", "", at)
	assert.False(t, ok)
	_, ok = FromMessage("C1", "171.3", "   ", "", at)
	assert.False(t, ok)
}

func TestEnsureEmbedded(t *testing.T) {
	ctx := context.Background()
	emb := &mapEmbedder{vectors: map[string][]float32{"db down": {1, 0, 0}}}

	rec := Unembedded{Update: Update{MessageTS: "1", Text: "db down"}}
	got, err := EnsureEmbedded(ctx, rec, emb)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Vector)
	assert.Equal(t, "db down", got.Text)
	assert.Equal(t, 1, emb.callCount())

	again, err := EnsureEmbedded(ctx, got, emb)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, emb.callCount(), "embedded records are not re-embedded")

	emb.err = embedder.ErrProviderFailed
	_, err = EnsureEmbedded(ctx, rec, emb)
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)
}

func TestCacheTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCache(now)

	c.Add(Update{MessageTS: "old", Text: "outage", PostedAt: now.Add(-25 * time.Hour)})
	c.Add(Update{MessageTS: "new", Text: "outage", PostedAt: now.Add(-time.Hour)})
	c.Add(Update{MessageTS: "now", Text: "outage"})

	assert.Equal(t, 2, c.Size())
	recent := c.Recent(nil)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].MessageTS)
	assert.Equal(t, now, recent[1].PostedAt)

	c.now = func() time.Time { return now.Add(24 * time.Hour) }
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCacheRecentKeywords(t *testing.T) {
	now := time.Now()
	c := newTestCache(now)
	c.Add(Update{MessageTS: "1", Keywords: []string{"outage"}, PostedAt: now})
	c.Add(Update{MessageTS: "2", Keywords: []string{"Deploy", "build"}, PostedAt: now})

	got := c.Recent([]string{"DEPLOY"})
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].MessageTS)
	assert.Len(t, c.Recent(nil), 2)
	assert.Empty(t, c.Recent([]string{"maintenance"}))
}

func TestCacheSearch(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := newTestCache(now)
	emb := &mapEmbedder{vectors: map[string][]float32{
		"CI is failing on main":  {0.8, 0.6, 0},
		"VPN maintenance window": {0, 1, 0},
		"GitHub outage resolved": {0.6, 0.8, 0},
	}}
	for i, text := range []string{"CI is failing on main", "VPN maintenance window", "GitHub outage resolved"} {
		c.Add(Update{MessageTS: string(rune('a' + i)), Text: text, PostedAt: now})
	}

	matches, err := c.Search(ctx, []float32{1, 0, 0}, emb, DefaultTopK, DefaultMinSimilarity)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "CI is failing on main", matches[0].Update.Text)
	assert.InDelta(t, 0.8, matches[0].Similarity, 1e-6)
	assert.InDelta(t, 0.6, matches[1].Similarity, 1e-6)
	assert.Equal(t, 3, emb.callCount())

	t.Run("vectors are reused", func(t *testing.T) {
		_, err := c.Search(ctx, []float32{0, 1, 0}, emb, 1, 0.5)
		require.NoError(t, err)
		assert.Equal(t, 3, emb.callCount())
	})

	t.Run("topK bounds output", func(t *testing.T) {
		matches, err := c.Search(ctx, []float32{0.6, 0.8, 0}, emb, 1, 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "GitHub outage resolved", matches[0].Update.Text)
	})

	t.Run("provider failure", func(t *testing.T) {
		c.Add(Update{MessageTS: "z", Text: "new incident", PostedAt: now})
		emb.err = embedder.ErrProviderFailed
		_, err := c.Search(ctx, []float32{1, 0, 0}, emb, 3, 0.5)
		assert.ErrorIs(t, err, embedder.ErrProviderFailed)
	})
}

func TestCacheSearchEmpty(t *testing.T) {
	c := NewCache(0, nil)
	matches, err := c.Search(context.Background(), []float32{1, 0, 0}, &mapEmbedder{}, 3, 0.5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCacheConcurrentSearchAndAdd(t *testing.T) {
	ctx := context.Background()
	c := NewCache(time.Hour, nil)
	emb := &mapEmbedder{vectors: map[string][]float32{}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Add(Update{MessageTS: time.Now().String(), Text: "deploy broken"})
		}()
		go func() {
			defer wg.Done()
			_, err := c.Search(ctx, []float32{0, 0, 1}, emb, 3, 0.5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, c.Size())
}
