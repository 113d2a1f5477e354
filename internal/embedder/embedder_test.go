package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dshills/faqgate/pkg/types"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("m1", "hello world")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ComputeHash("m1", "hello world"))
	assert.NotEqual(t, a, ComputeHash("m2", "hello world"))
	assert.NotEqual(t, a, ComputeHash("m1", "hello world!"))
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "test"}))

	err := ValidateRequest(EmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestValidateBatchRequest(t *testing.T) {
	tooMany := make([]string, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "x"
	}

	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr error
	}{
		{name: "valid", req: BatchEmbeddingRequest{Texts: []string{"a", "b"}}},
		{name: "empty batch", req: BatchEmbeddingRequest{}, wantErr: ErrInvalidInput},
		{name: "empty text", req: BatchEmbeddingRequest{Texts: []string{"a", ""}}, wantErr: ErrInvalidInput},
		{name: "too large", req: BatchEmbeddingRequest{Texts: tooMany}, wantErr: ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h", &Embedding{Vector: []float32{1, 0}, Dimension: 2})

		got, ok := cache.Get("h")
		require.True(t, ok)
		got.Vector[0] = 42

		again, ok := cache.Get("h")
		require.True(t, ok)
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("set stores a copy", func(t *testing.T) {
		cache := NewCache(10)
		emb := &Embedding{Vector: []float32{1, 0}}
		cache.Set("h", emb)
		emb.Vector[0] = 7

		got, _ := cache.Get("h")
		assert.Equal(t, float32(1), got.Vector[0])
	})

	t.Run("lru eviction", func(t *testing.T) {
		cache := NewCache(2)
		for i := 0; i < 3; i++ {
			cache.Set(fmt.Sprintf("h%d", i), &Embedding{Vector: []float32{float32(i)}})
		}
		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("h0")
		assert.False(t, ok)

		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("stats count hits and misses", func(t *testing.T) {
		cache := NewCache(10)
		_, _ = cache.Get("missing")
		cache.Set("h", &Embedding{Vector: []float32{1}})
		_, _ = cache.Get("h")
		_, _ = cache.Get("h")

		assert.Equal(t, CacheStats{Hits: 2, Misses: 1, Size: 1}, cache.Stats())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{})
		assert.Equal(t, 1, cache.Size())
	})
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p, err := NewLocalProvider(NewCache(100))
	require.NoError(t, err)
	var _ CacheReporter = p

	t.Run("unit norm and dimension", func(t *testing.T) {
		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "How do I reset my password?"})
		require.NoError(t, err)
		assert.Len(t, emb.Vector, LocalDimension)
		assert.InDelta(t, 1.0, norm(emb.Vector), 1e-5)
		assert.Equal(t, ProviderLocal, emb.Provider)
	})

	t.Run("deterministic", func(t *testing.T) {
		fresh, _ := NewLocalProvider(nil)
		a, err := fresh.GenerateEmbedding(ctx, EmbeddingRequest{Text: "vpn setup guide"})
		require.NoError(t, err)
		b, err := fresh.GenerateEmbedding(ctx, EmbeddingRequest{Text: "vpn setup guide"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, b.Vector)
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		q, _ := Embed(ctx, p, "reset password")
		near, _ := Embed(ctx, p, "How to reset your password")
		far, _ := Embed(ctx, p, "Expense report deadlines for finance")
		assert.Greater(t, dot(q, near), dot(q, far))
	})

	t.Run("symbols only text is never zero", func(t *testing.T) {
		v, err := Embed(ctx, p, "!!! ???")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := newTestLocal(t).GenerateEmbedding(cctx, EmbeddingRequest{Text: "x"})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestEmbedBatch(t *testing.T) {
	ctx := context.Background()
	p := newTestLocal(t)

	t.Run("splits into provider sized batches", func(t *testing.T) {
		texts := make([]string, MaxBatchSize*2+5)
		for i := range texts {
			texts[i] = fmt.Sprintf("question number %d", i)
		}
		vecs, err := EmbedBatch(ctx, p, texts)
		require.NoError(t, err)
		require.Len(t, vecs, len(texts))

		single, err := Embed(ctx, p, texts[150])
		require.NoError(t, err)
		assert.Equal(t, single, vecs[150])
	})

	t.Run("empty input", func(t *testing.T) {
		vecs, err := EmbedBatch(ctx, p, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})
}

func TestNormalizeVector(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, NormalizeVector([]float32{3, 4}))
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
}

func TestLocalProviderUnitNormProperty(t *testing.T) {
	p := newTestLocal(t)
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringN(1, 200, -1).Draw(rt, "text")
		v, err := Embed(context.Background(), p, text)
		if err != nil {
			rt.Fatalf("embed: %v", err)
		}
		if math.Abs(norm(v)-1) > 1e-4 {
			rt.Fatalf("norm %f for %q", norm(v), text)
		}
	})
}

func newTestLocal(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)
	return p
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
