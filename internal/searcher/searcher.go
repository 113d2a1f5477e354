package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/faqgate/internal/embedder"
	"github.com/dshills/faqgate/internal/index"
	"github.com/dshills/faqgate/internal/reranker"
	"github.com/dshills/faqgate/pkg/types"
)

// Common errors
var (
	ErrEmptyQuery = fmt.Errorf("%w: query cannot be empty", types.ErrValidation)
	ErrNoReranker = fmt.Errorf("%w: reranked mode requires a reranker", types.ErrValidation)
)

// Config sizes each retrieval stage.
type Config struct {
	TopK          int     // final results for semantic and hybrid
	SemanticTopK  int     // dense candidates before fusion
	BM25TopK      int     // keyword candidates before fusion
	RRFConstant   float64 // k for Reciprocal Rank Fusion
	RetrievalTopK int     // first-stage pool for reranking
	RerankTopK    int     // final results after reranking

	CacheSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns the stage sizes used by the bot.
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		SemanticTopK:  20,
		BM25TopK:      20,
		RRFConstant:   DefaultRRFConstant,
		RetrievalTopK: 20,
		RerankTopK:    5,
		CacheSize:     1000,
		CacheTTL:      time.Hour,
	}
}

func (c Config) validate() error {
	var bad []string
	sizes := []struct {
		name string
		v    int
	}{
		{"top_k", c.TopK},
		{"semantic_top_k", c.SemanticTopK},
		{"bm25_top_k", c.BM25TopK},
		{"retrieval_top_k", c.RetrievalTopK},
		{"rerank_top_k", c.RerankTopK},
		{"cache_size", c.CacheSize},
	}
	for _, sz := range sizes {
		if sz.v < 0 {
			bad = append(bad, fmt.Sprintf("%s must not be negative (got %d)", sz.name, sz.v))
		}
	}
	if c.RRFConstant < 0 {
		bad = append(bad, fmt.Sprintf("rrf constant must not be negative (got %g)", c.RRFConstant))
	}
	if c.CacheTTL < 0 {
		bad = append(bad, "cache ttl must not be negative")
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: %s", types.ErrValidation, strings.Join(bad, "; "))
	}
	return nil
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	Limit    int  // overrides the final size when positive
	Mode     Mode // overrides the configured mode when non-nil
	UseCache bool
}

// Retrieval is the ranked evidence for one query. QueryVector is kept so
// later stages can correlate other signals without embedding again.
type Retrieval struct {
	Results        []types.SearchResult
	QueryVector    []float32
	Mode           Mode
	Generation     string
	Duration       time.Duration
	CacheHit       bool
	DenseResults   int
	KeywordResults int
}

// cacheEntry represents a cached retrieval with expiration time
type cacheEntry struct {
	retrieval *Retrieval
	expiresAt time.Time
}

// Searcher runs the retrieval stages against the current index snapshot.
type Searcher struct {
	store    *index.Store
	embedder embedder.Embedder
	reranker *reranker.Reranker
	mode     Mode
	cfg      Config
	logger   *zap.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher. rr may be nil unless mode is Reranked.
// Zero sizes take the defaults; negative ones are rejected.
func NewSearcher(store *index.Store, emb embedder.Embedder, rr *reranker.Reranker, mode Mode, cfg Config, logger *zap.Logger) (*Searcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	def := DefaultConfig()
	if cfg.TopK == 0 {
		cfg.TopK = def.TopK
	}
	if cfg.SemanticTopK == 0 {
		cfg.SemanticTopK = def.SemanticTopK
	}
	if cfg.BM25TopK == 0 {
		cfg.BM25TopK = def.BM25TopK
	}
	if cfg.RRFConstant == 0 {
		cfg.RRFConstant = def.RRFConstant
	}
	if cfg.RetrievalTopK == 0 {
		cfg.RetrievalTopK = def.RetrievalTopK
	}
	if cfg.RerankTopK == 0 {
		cfg.RerankTopK = def.RerankTopK
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if mode == nil {
		mode = Semantic{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	return &Searcher{
		store:    store,
		embedder: emb,
		reranker: rr,
		mode:     mode,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "searcher")),
		cache:    cache,
	}, nil
}

// Mode returns the configured retrieval mode.
func (s *Searcher) Mode() Mode {
	return s.mode
}

// Retrieve runs the configured mode with default sizes and caching.
func (s *Searcher) Retrieve(ctx context.Context, query string) (*Retrieval, error) {
	return s.Search(ctx, SearchRequest{Query: query, UseCache: true})
}

// Search performs a search based on the request parameters. Stages run in
// order: embed, retrieve, fuse or rerank.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*Retrieval, error) {
	startTime := time.Now()

	if s.embedder == nil {
		return nil, errors.New("embedder not initialized")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.Mode == nil {
		req.Mode = s.mode
	}
	if _, ok := req.Mode.(Reranked); ok && s.reranker == nil {
		return nil, ErrNoReranker
	}

	snap := s.store.Current()

	if req.UseCache {
		if cached := s.checkCache(req, snap.Generation); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	vec, err := embedder.Embed(ctx, s.embedder, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	ret := &Retrieval{QueryVector: vec, Mode: req.Mode, Generation: snap.Generation}
	if err := s.run(ctx, snap, req, ret); err != nil {
		return nil, err
	}
	ret.Duration = time.Since(startTime)

	s.logger.Debug("retrieval complete",
		zap.String("mode", req.Mode.String()),
		zap.Int("results", len(ret.Results)),
		zap.Int("dense", ret.DenseResults),
		zap.Int("keyword", ret.KeywordResults),
		zap.Duration("elapsed", ret.Duration))

	if req.UseCache {
		s.storeInCache(req, ret)
	}
	return ret, nil
}

func (s *Searcher) run(ctx context.Context, snap *index.Snapshot, req SearchRequest, ret *Retrieval) error {
	switch mode := req.Mode.(type) {
	case Semantic:
		return s.semantic(snap, s.finalSize(req), ret)
	case Hybrid:
		return s.hybrid(ctx, snap, req.Query, s.finalSize(req), ret)
	case Reranked:
		var err error
		if _, ok := mode.Base.(Hybrid); ok {
			err = s.hybrid(ctx, snap, req.Query, s.cfg.RetrievalTopK, ret)
		} else {
			err = s.semantic(snap, s.cfg.RetrievalTopK, ret)
		}
		if err != nil {
			return err
		}
		reranked, err := s.reranker.Rerank(ctx, req.Query, ret.Results, s.finalSize(req))
		if err != nil {
			return fmt.Errorf("rerank: %w", err)
		}
		ret.Results = reranked
		return nil
	default:
		return fmt.Errorf("%w: unsupported retrieval mode %v", types.ErrValidation, req.Mode)
	}
}

func (s *Searcher) finalSize(req SearchRequest) int {
	if req.Limit > 0 {
		return req.Limit
	}
	if _, ok := req.Mode.(Reranked); ok {
		return s.cfg.RerankTopK
	}
	return s.cfg.TopK
}

func (s *Searcher) semantic(snap *index.Snapshot, k int, ret *Retrieval) error {
	results, err := snap.Dense.Search(ret.QueryVector, k)
	if err != nil {
		return fmt.Errorf("dense search: %w", err)
	}
	ret.Results = results
	ret.DenseResults = len(results)
	return nil
}

// hybrid runs dense and keyword search concurrently over the same
// snapshot and fuses them.
func (s *Searcher) hybrid(ctx context.Context, snap *index.Snapshot, query string, k int, ret *Retrieval) error {
	var dense, keyword []types.SearchResult

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = snap.Dense.Search(ret.QueryVector, s.cfg.SemanticTopK)
		if err != nil {
			return fmt.Errorf("dense search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		keyword = snap.Keyword.Search(query, s.cfg.BM25TopK)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	ret.DenseResults = len(dense)
	ret.KeywordResults = len(keyword)
	ret.Results = types.Truncate(FuseRRF(dense, keyword, s.cfg.RRFConstant), k)
	return nil
}

// checkCache looks up a cached retrieval for the current generation
func (s *Searcher) checkCache(req SearchRequest, generation string) *Retrieval {
	hash := s.computeQueryHash(req, generation)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	ret := copyRetrieval(entry.retrieval)
	s.cacheMu.RUnlock()
	return ret
}

// storeInCache saves a retrieval to cache
func (s *Searcher) storeInCache(req SearchRequest, ret *Retrieval) {
	hash := s.computeQueryHash(req, ret.Generation)
	entry := &cacheEntry{
		retrieval: copyRetrieval(ret),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// copyRetrieval creates a deep copy of a Retrieval
func copyRetrieval(src *Retrieval) *Retrieval {
	dst := *src
	dst.Results = append([]types.SearchResult(nil), src.Results...)
	dst.QueryVector = append([]float32(nil), src.QueryVector...)
	return &dst
}

// computeQueryHash keys the cache by query, mode, size and snapshot
// generation, so a published sync never serves stale results.
func (s *Searcher) computeQueryHash(req SearchRequest, generation string) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(req.Mode.String())
	data.WriteString("|")
	data.WriteString(strconv.Itoa(s.finalSize(req)))
	data.WriteString("|")
	data.WriteString(generation)
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached retrieval
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached retrievals
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
