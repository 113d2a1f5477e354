package config

import (
	"time"

	"github.com/dshills/faqgate/internal/confidence"
	"github.com/dshills/faqgate/internal/generator"
	"github.com/dshills/faqgate/internal/reranker"
	"github.com/dshills/faqgate/internal/searcher"
	"github.com/dshills/faqgate/internal/status"
)

// DefaultConfig returns the tuned defaults
func DefaultConfig() *Config {
	th := searcher.DefaultThresholds()
	sc := searcher.DefaultConfig()

	return &Config{
		Retrieval: RetrievalConfig{
			TopK:          sc.TopK,
			MinSimilarity: th.Semantic.MinSimilarity,
			Policy:        confidence.PolicyRatio,
			Semantic:      SemanticConfig{MinRatio: th.Semantic.MinRatio, MinGap: th.Semantic.MinGap},
			CacheSize:     sc.CacheSize,
			CacheTTL:      sc.CacheTTL,
		},
		Hybrid: HybridConfig{
			SemanticTopK:  sc.SemanticTopK,
			BM25TopK:      sc.BM25TopK,
			RRFK:          sc.RRFConstant,
			MinRatio:      th.Hybrid.MinRatio,
			MinSimilarity: th.Hybrid.MinSimilarity,
			MinGap:        th.Hybrid.MinGap,
		},
		Rerank: RerankConfig{
			RetrievalTopK: sc.RetrievalTopK,
			RerankTopK:    sc.RerankTopK,
			MinRatio:      th.Reranked.MinRatio,
			MinSimilarity: th.Reranked.MinSimilarity,
			MinGap:        th.Reranked.MinGap,
			Provider:      reranker.EncoderLexical,
			BatchSize:     reranker.DefaultBatchSize,
			Timeout:       30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "auto",
			CacheSize: 10000,
		},
		Status: StatusConfig{
			Enabled:       true,
			TTL:           status.DefaultTTL,
			TopK:          status.DefaultTopK,
			MinSimilarity: status.DefaultMinSimilarity,
			MaxShown:      2,
			MaxChars:      200,
		},
		Sync: SyncConfig{
			Interval:      30 * time.Minute,
			Watch:         true,
			KeepSnapshots: 3,
		},
		Storage: StorageConfig{
			DBPath: "~/.faqgate/faqgate.db",
		},
		Generator: GeneratorConfig{
			Provider:  "auto",
			Model:     generator.DefaultAnthropicModel,
			MaxTokens: generator.DefaultMaxTokens,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
