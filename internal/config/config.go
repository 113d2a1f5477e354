package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/faqgate/internal/confidence"
	"github.com/dshills/faqgate/internal/searcher"
	"github.com/dshills/faqgate/pkg/types"
)

// Config is the full faqgate configuration
type Config struct {
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`
	Hybrid    HybridConfig    `yaml:"hybrid" env:"HYBRID"`
	Rerank    RerankConfig    `yaml:"rerank" env:"RERANK"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Status    StatusConfig    `yaml:"status" env:"STATUS"`
	Sync      SyncConfig      `yaml:"sync" env:"SYNC"`
	Storage   StorageConfig   `yaml:"storage" env:"STORAGE"`
	Generator GeneratorConfig `yaml:"generator" env:"GENERATOR"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
}

// RetrievalConfig holds the semantic settings and the gate policy shared
// by every mode. Each mode carries its own thresholds.
type RetrievalConfig struct {
	TopK          int            `yaml:"top_k" env:"TOP_K"`
	MinSimilarity float64        `yaml:"min_similarity" env:"MIN_SIMILARITY"`
	Policy        string         `yaml:"policy" env:"POLICY"`
	Semantic      SemanticConfig `yaml:"semantic" env:"SEMANTIC"`
	CacheSize     int            `yaml:"cache_size" env:"CACHE_SIZE"`
	CacheTTL      time.Duration  `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// SemanticConfig holds semantic-only gate settings
type SemanticConfig struct {
	MinRatio float64 `yaml:"min_ratio" env:"MIN_RATIO"`
	MinGap   float64 `yaml:"min_gap" env:"MIN_GAP"`
}

// HybridConfig configures dense + BM25 retrieval
type HybridConfig struct {
	Enabled       bool    `yaml:"enabled" env:"ENABLED"`
	SemanticTopK  int     `yaml:"semantic_top_k" env:"SEMANTIC_TOP_K"`
	BM25TopK      int     `yaml:"bm25_top_k" env:"BM25_TOP_K"`
	RRFK          float64 `yaml:"rrf_k" env:"RRF_K"`
	MinRatio      float64 `yaml:"min_ratio" env:"MIN_RATIO"`
	MinSimilarity float64 `yaml:"min_similarity" env:"MIN_SIMILARITY"`
	MinGap        float64 `yaml:"min_gap" env:"MIN_GAP"`
}

// RerankConfig configures cross-encoder reranking
type RerankConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	RetrievalTopK int           `yaml:"retrieval_top_k" env:"RETRIEVAL_TOP_K"`
	RerankTopK    int           `yaml:"rerank_top_k" env:"RERANK_TOP_K"`
	MinRatio      float64       `yaml:"min_ratio" env:"MIN_RATIO"`
	MinSimilarity float64       `yaml:"min_similarity" env:"MIN_SIMILARITY"`
	MinGap        float64       `yaml:"min_gap" env:"MIN_GAP"`
	Provider      string        `yaml:"provider" env:"PROVIDER"`
	URL           string        `yaml:"url" env:"URL"`
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	BatchSize     int           `yaml:"batch_size" env:"BATCH_SIZE"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EmbeddingConfig selects the embedding provider. API keys default to
// JINA_API_KEY or OPENAI_API_KEY.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" env:"PROVIDER"`
	Model             string  `yaml:"model" env:"MODEL"`
	Endpoint          string  `yaml:"endpoint" env:"ENDPOINT"`
	APIKey            string  `yaml:"api_key" env:"API_KEY"`
	CacheSize         int     `yaml:"cache_size" env:"CACHE_SIZE"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// StatusConfig configures status update correlation
type StatusConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
	TopK          int           `yaml:"top_k" env:"TOP_K"`
	MinSimilarity float64       `yaml:"min_similarity" env:"MIN_SIMILARITY"`
	MaxShown      int           `yaml:"max_shown" env:"MAX_SHOWN"`
	MaxChars      int           `yaml:"max_chars" env:"MAX_CHARS"`
}

// SyncConfig configures ingestion of the markdown source
type SyncConfig struct {
	Source        string        `yaml:"source" env:"SOURCE"`
	Interval      time.Duration `yaml:"interval" env:"INTERVAL"`
	Watch         bool          `yaml:"watch" env:"WATCH"`
	Workers       int           `yaml:"workers" env:"WORKERS"`
	KeepSnapshots int           `yaml:"keep_snapshots" env:"KEEP_SNAPSHOTS"`
}

// StorageConfig locates the SQLite database
type StorageConfig struct {
	DBPath string `yaml:"db_path" env:"DB_PATH"`
}

// GeneratorConfig configures answer generation. The API key defaults to
// ANTHROPIC_API_KEY.
type GeneratorConfig struct {
	Provider  string `yaml:"provider" env:"PROVIDER"`
	Model     string `yaml:"model" env:"MODEL"`
	MaxTokens int    `yaml:"max_tokens" env:"MAX_TOKENS"`
	BaseURL   string `yaml:"base_url" env:"BASE_URL"`
	APIKey    string `yaml:"api_key" env:"API_KEY"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json or console
}

// MetricsConfig configures the Prometheus listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Validate checks ranges and enumerations. Every error wraps
// types.ErrValidation.
func (c *Config) Validate() error {
	var errs []string

	if c.Retrieval.TopK < 1 {
		errs = append(errs, "retrieval.top_k must be at least 1")
	}
	if !unit(c.Retrieval.MinSimilarity) {
		errs = append(errs, "retrieval.min_similarity must be between 0 and 1")
	}
	if c.Retrieval.Policy != confidence.PolicyRatio && c.Retrieval.Policy != confidence.PolicyGap {
		errs = append(errs, fmt.Sprintf("retrieval.policy must be %q or %q", confidence.PolicyRatio, confidence.PolicyGap))
	}
	if !unit(c.Retrieval.Semantic.MinGap) {
		errs = append(errs, "retrieval.semantic.min_gap must be between 0 and 1")
	}
	if c.Retrieval.Semantic.MinRatio < 1 {
		errs = append(errs, "retrieval.semantic.min_ratio must be at least 1")
	}

	if c.Hybrid.SemanticTopK < 1 || c.Hybrid.BM25TopK < 1 {
		errs = append(errs, "hybrid candidate sizes must be at least 1")
	}
	if c.Hybrid.RRFK <= 0 {
		errs = append(errs, "hybrid.rrf_k must be positive")
	}
	if c.Hybrid.MinRatio < 1 {
		errs = append(errs, "hybrid.min_ratio must be at least 1")
	}
	if !unit(c.Hybrid.MinSimilarity) {
		errs = append(errs, "hybrid.min_similarity must be between 0 and 1")
	}
	if !unit(c.Hybrid.MinGap) {
		errs = append(errs, "hybrid.min_gap must be between 0 and 1")
	}

	if c.Rerank.RetrievalTopK < 1 || c.Rerank.RerankTopK < 1 {
		errs = append(errs, "rerank candidate sizes must be at least 1")
	}
	if c.Rerank.RerankTopK > c.Rerank.RetrievalTopK {
		errs = append(errs, "rerank.rerank_top_k cannot exceed rerank.retrieval_top_k")
	}
	if c.Rerank.MinRatio < 1 {
		errs = append(errs, "rerank.min_ratio must be at least 1")
	}
	if !unit(c.Rerank.MinSimilarity) {
		errs = append(errs, "rerank.min_similarity must be between 0 and 1")
	}
	if !unit(c.Rerank.MinGap) {
		errs = append(errs, "rerank.min_gap must be between 0 and 1")
	}

	if c.Status.TTL <= 0 {
		errs = append(errs, "status.ttl must be positive")
	}
	if c.Status.TopK < 1 || c.Status.MaxShown < 0 || c.Status.MaxChars < 1 {
		errs = append(errs, "status sizes out of range")
	}
	if !unit(c.Status.MinSimilarity) {
		errs = append(errs, "status.min_similarity must be between 0 and 1")
	}

	if c.Sync.Interval < time.Minute {
		errs = append(errs, "sync.interval must be at least 1m")
	}

	if c.Generator.MaxTokens < 1 {
		errs = append(errs, "generator.max_tokens must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrValidation, strings.Join(errs, "; "))
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// Mode resolves the retrieval mode from the hybrid and rerank flags.
func (c *Config) Mode() searcher.Mode {
	return searcher.ModeFromFlags(c.Hybrid.Enabled, c.Rerank.Enabled)
}

// Thresholds returns the per-mode gate settings.
func (c *Config) Thresholds() searcher.Thresholds {
	return searcher.Thresholds{
		Semantic: searcher.ModeThreshold{
			MinSimilarity: c.Retrieval.MinSimilarity,
			MinRatio:      c.Retrieval.Semantic.MinRatio,
			MinGap:        c.Retrieval.Semantic.MinGap,
		},
		Hybrid: searcher.ModeThreshold{
			MinSimilarity: c.Hybrid.MinSimilarity,
			MinRatio:      c.Hybrid.MinRatio,
			MinGap:        c.Hybrid.MinGap,
		},
		Reranked: searcher.ModeThreshold{
			MinSimilarity: c.Rerank.MinSimilarity,
			MinRatio:      c.Rerank.MinRatio,
			MinGap:        c.Rerank.MinGap,
		},
	}
}

// SearcherConfig returns the retrieval stage sizes.
func (c *Config) SearcherConfig() searcher.Config {
	return searcher.Config{
		TopK:          c.Retrieval.TopK,
		SemanticTopK:  c.Hybrid.SemanticTopK,
		BM25TopK:      c.Hybrid.BM25TopK,
		RRFConstant:   c.Hybrid.RRFK,
		RetrievalTopK: c.Rerank.RetrievalTopK,
		RerankTopK:    c.Rerank.RerankTopK,
		CacheSize:     c.Retrieval.CacheSize,
		CacheTTL:      c.Retrieval.CacheTTL,
	}
}

// ResolvedDBPath expands a leading "~" in the database path.
func (c *Config) ResolvedDBPath() (string, error) {
	return ExpandHome(c.Storage.DBPath)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Join(errors.New("failed to get home directory"), err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
