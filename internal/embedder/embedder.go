package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/faqgate/pkg/types"
)

var (
	ErrInvalidInput      = fmt.Errorf("%w: invalid embedding input", types.ErrValidation)
	ErrEmptyText         = fmt.Errorf("%w: text cannot be empty", types.ErrValidation)
	ErrProviderFailed    = fmt.Errorf("%w: embedding provider failed", types.ErrProviderFailure)
	ErrUnsupportedModel  = errors.New("unsupported embedding provider")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding represents a unit-length vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // cache key, see ComputeHash
}

// EmbeddingRequest asks for one vector. Model overrides the provider default.
type EmbeddingRequest struct {
	Text  string
	Model string
}

// BatchEmbeddingRequest asks for one vector per text, at most MaxBatchSize.
type BatchEmbeddingRequest struct {
	Texts []string
	Model string // Optional: override default model
}

// BatchEmbeddingResponse holds vectors in request order.
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder maps text to fixed-dimension unit vectors. Implementations must
// be deterministic for a given model so that index vectors and query
// vectors live in the same space.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch preserves input order.
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	Dimension() int

	Provider() string

	// Model is the default model; it is recorded with every snapshot.
	Model() string

	Close() error
}

// Embed returns the vector for a single text.
func Embed(ctx context.Context, e Embedder, text string) ([]float32, error) {
	emb, err := e.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

// EmbedBatch embeds texts in MaxBatchSize slices and returns the vectors in
// input order. An empty input yields an empty result.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(texts))
		resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts[start:end]})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			vectors = append(vectors, emb.Vector)
		}
	}
	return vectors, nil
}

// CacheStats reports how well the vector cache is doing.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// CacheReporter is implemented by embedders that keep a vector cache.
type CacheReporter interface {
	CacheStats() CacheStats
}

// Cache is a bounded LRU of vectors keyed by ComputeHash. Both directions
// copy, so callers may mutate what they pass in or get back.
type Cache struct {
	lru    *lru.Cache[string, *Embedding]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache returns a cache holding at most size vectors; size <= 0 means
// DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size.
	l, _ := lru.New[string, *Embedding](size)
	return &Cache{lru: l}
}

func (c *Cache) Get(key string) (*Embedding, bool) {
	emb, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return emb.clone(), true
}

func (c *Cache) Set(key string, emb *Embedding) {
	c.lru.Add(key, emb.clone())
}

func (c *Cache) Size() int {
	return c.lru.Len()
}

// Clear drops every vector. Hit and miss counters keep counting.
func (c *Cache) Clear() {
	c.lru.Purge()
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.lru.Len()}
}

func (e *Embedding) clone() *Embedding {
	out := *e
	out.Vector = append([]float32(nil), e.Vector...)
	return &out
}

// ComputeHash computes SHA-256 hash of text for caching. The model is part
// of the key so switching models never serves stale vectors.
func ComputeHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateRequest rejects empty text.
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest rejects empty or oversized batches and empty texts.
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if len(req.Texts) > MaxBatchSize {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}
