package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/config"
	"github.com/dshills/faqgate/internal/embedder"
	"github.com/dshills/faqgate/internal/generator"
	"github.com/dshills/faqgate/internal/index"
	"github.com/dshills/faqgate/internal/indexer"
	"github.com/dshills/faqgate/internal/metrics"
	"github.com/dshills/faqgate/internal/pipeline"
	"github.com/dshills/faqgate/internal/reranker"
	"github.com/dshills/faqgate/internal/searcher"
	"github.com/dshills/faqgate/internal/status"
	"github.com/dshills/faqgate/internal/storage"
)

// application holds the wired components shared by every subcommand.
// One embedder instance serves both the syncer and the searcher so their
// embedding caches are shared.
type application struct {
	cfg    *config.Config
	logger *zap.Logger

	registry    *prometheus.Registry
	metrics     *metrics.Collector
	embedder    embedder.Embedder
	storage     *storage.SQLiteStorage
	store       *index.Store
	searcher    *searcher.Searcher
	status      *status.Cache
	pipeline    *pipeline.Pipeline
	suggestions *pipeline.Suggestions
	syncer      *indexer.Syncer
}

func newApplication(cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		store:    index.NewStore(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.NewCollector(metrics.DefaultNamespace, app.registry, logger)

	var err error
	app.embedder, err = embedder.New(embedder.Config{
		Provider:          cfg.Embedding.Provider,
		APIKey:            cfg.Embedding.APIKey,
		Endpoint:          cfg.Embedding.Endpoint,
		Model:             cfg.Embedding.Model,
		CacheSize:         cfg.Embedding.CacheSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	if cr, ok := app.embedder.(embedder.CacheReporter); ok {
		app.metrics.ObserveEmbeddingCache(func() (uint64, uint64, int) {
			st := cr.CacheStats()
			return st.Hits, st.Misses, st.Size
		})
	}

	app.storage, err = openStorage(cfg)
	if err != nil {
		_ = app.embedder.Close()
		return nil, err
	}

	if err := app.wire(); err != nil {
		_ = app.Close()
		return nil, err
	}

	logger.Info("faqgate initialized",
		zap.String("mode", app.searcher.Mode().String()),
		zap.String("embedder", app.embedder.Provider()),
		zap.String("model", app.embedder.Model()),
		zap.String("storage", storage.BuildMode),
		zap.String("source", cfg.Sync.Source))
	return app, nil
}

func (a *application) wire() error {
	cfg := a.cfg

	var (
		rr  *reranker.Reranker
		err error
	)
	if cfg.Rerank.Enabled {
		encoder, err := newCrossEncoder(cfg.Rerank)
		if err != nil {
			return err
		}
		rr, err = reranker.New(encoder, cfg.Rerank.BatchSize, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize reranker: %w", err)
		}
	}
	a.searcher, err = searcher.NewSearcher(a.store, a.embedder, rr, cfg.Mode(), cfg.SearcherConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize searcher: %w", err)
	}

	if cfg.Status.Enabled {
		a.status = status.NewCache(cfg.Status.TTL, a.logger)
	}

	gen, err := generator.New(generator.Config{
		Provider:  cfg.Generator.Provider,
		APIKey:    cfg.Generator.APIKey,
		BaseURL:   cfg.Generator.BaseURL,
		Model:     cfg.Generator.Model,
		MaxTokens: cfg.Generator.MaxTokens,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %w", err)
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Searcher:  a.searcher,
		Generator: gen,
		Embedder:  a.embedder,
		Status:    a.status,
		Storage:   a.storage,
		Recorder:  a.metrics,
		Logger:    a.logger,
	}, pipeline.Config{
		Thresholds:          cfg.Thresholds(),
		Policy:              cfg.Retrieval.Policy,
		StatusTopK:          cfg.Status.TopK,
		StatusMinSimilarity: cfg.Status.MinSimilarity,
		StatusMaxShown:      cfg.Status.MaxShown,
		StatusMaxChars:      cfg.Status.MaxChars,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	a.suggestions = pipeline.NewSuggestions(a.searcher, 0)

	a.syncer = indexer.New(a.store, a.embedder, indexer.Config{
		Source:        cfg.Sync.Source,
		Workers:       cfg.Sync.Workers,
		KeepSnapshots: cfg.Sync.KeepSnapshots,
	},
		indexer.WithStorage(a.storage),
		indexer.WithObserver(a.metrics),
		indexer.WithLogger(a.logger),
		indexer.OnPublish(func(*index.Snapshot) { a.searcher.InvalidateCache() }),
	)
	return nil
}

func newCrossEncoder(cfg config.RerankConfig) (reranker.CrossEncoder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", reranker.EncoderLexical:
		return reranker.NewLexicalCrossEncoder(), nil
	case reranker.EncoderHTTP:
		enc, err := reranker.NewHTTPCrossEncoder(reranker.HTTPConfig{
			URL:     cfg.URL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cross-encoder: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.Provider)
	}
}

func openStorage(cfg *config.Config) (*storage.SQLiteStorage, error) {
	dbPath, err := cfg.ResolvedDBPath()
	if err != nil {
		return nil, err
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return db, nil
}

// prepare publishes an index for one-shot commands: the persisted snapshot
// if there is one, then a sync of the source when one is configured.
func (a *application) prepare(ctx context.Context) error {
	if _, err := a.syncer.WarmStart(ctx); err != nil {
		a.logger.Warn("warm start failed", zap.Error(err))
	}
	if a.cfg.Sync.Source == "" {
		if a.store.Current().Size() == 0 {
			return errors.New("no FAQ index available: set sync.source or run faqgate sync")
		}
		return nil
	}
	if _, err := a.syncer.Sync(ctx, false); err != nil {
		if a.store.Current().Size() == 0 {
			return fmt.Errorf("sync failed: %w", err)
		}
		a.logger.Warn("sync failed, serving persisted snapshot", zap.Error(err))
	}
	return nil
}

// Close releases the embedder and the database.
func (a *application) Close() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.storage != nil {
		errs = append(errs, a.storage.Close())
	}
	return errors.Join(errs...)
}
