package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/faqgate/internal/chunker"
	"github.com/dshills/faqgate/internal/embedder"
	"github.com/dshills/faqgate/internal/index"
	"github.com/dshills/faqgate/internal/storage"
	"github.com/dshills/faqgate/pkg/types"
)

// Common errors
var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNoSource       = fmt.Errorf("%w: no FAQ source configured", types.ErrValidation)
	ErrNoChunks       = errors.New("source produced no chunks")
)

// Sync outcomes reported to the Observer
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Observer receives one call per sync attempt.
type Observer interface {
	RecordSync(outcome string, chunks int, elapsed time.Duration)
}

// Config contains configuration for the syncer
type Config struct {
	Source        string        // markdown file or directory
	Workers       int           // concurrent embedding batches (default: runtime.NumCPU())
	BatchSize     int           // texts per embedding request (default: embedder.MaxBatchSize)
	KeepSnapshots int           // persisted snapshots to retain (default: 3)
	DebounceDelay time.Duration // quiet period before a watched change syncs (default: 500ms)
}

// Statistics contains statistics about one sync
type Statistics struct {
	Generation string
	SourceHash string
	Chunks     int
	Batches    int
	Skipped    bool
	Reason     string
	Persisted  bool
	Pruned     int
	Duration   time.Duration
}

// Option configures a Syncer
type Option func(*Syncer)

// WithStorage persists every published snapshot and enables WarmStart.
func WithStorage(db storage.Storage) Option {
	return func(s *Syncer) { s.storage = db }
}

// WithObserver reports sync outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(s *Syncer) { s.observer = o }
}

// OnPublish registers a callback run after each snapshot is published.
func OnPublish(fn func(*index.Snapshot)) Option {
	return func(s *Syncer) { s.onPublish = append(s.onPublish, fn) }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Syncer) { s.logger = logger }
}

// Syncer coordinates the ingestion pipeline: read -> chunk -> embed ->
// build snapshot -> publish -> persist.
type Syncer struct {
	cfg       Config
	chunker   *chunker.Chunker
	embedder  embedder.Embedder
	store     *index.Store
	storage   storage.Storage
	observer  Observer
	onPublish []func(*index.Snapshot)
	logger    *zap.Logger

	// running is set for the duration of a sync; a second caller gets
	// ErrSyncInProgress rather than queueing.
	running atomic.Bool

	mu   sync.Mutex
	last *Statistics
}

// New creates a new Syncer publishing into store.
func New(store *index.Store, emb embedder.Embedder, cfg Config, opts ...Option) *Syncer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}
	if cfg.KeepSnapshots <= 0 {
		cfg.KeepSnapshots = 3
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 500 * time.Millisecond
	}

	s := &Syncer{
		cfg:      cfg,
		chunker:  chunker.New(),
		embedder: emb,
		store:    store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "indexer"))
	return s
}

// Source returns the configured FAQ source path.
func (s *Syncer) Source() string {
	return s.cfg.Source
}

// Syncing reports whether a sync is running.
func (s *Syncer) Syncing() bool {
	return s.running.Load()
}

// LastStats returns the statistics of the most recent sync, or nil.
func (s *Syncer) LastStats() *Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	stats := *s.last
	return &stats
}

// Sync rebuilds the index from the source. Unless force is set, a source
// whose content hash matches the current snapshot is skipped. The current
// snapshot keeps serving until the new one is published; a failed sync
// leaves it in place.
func (s *Syncer) Sync(ctx context.Context, force bool) (*Statistics, error) {
	if s.cfg.Source == "" {
		return nil, ErrNoSource
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	startTime := time.Now()
	stats, err := s.sync(ctx, force)
	elapsed := time.Since(startTime)

	outcome := OutcomeCompleted
	chunks := 0
	switch {
	case err != nil:
		outcome = OutcomeFailed
		s.logger.Error("sync failed", zap.String("source", s.cfg.Source), zap.Duration("elapsed", elapsed), zap.Error(err))
	case stats.Skipped:
		outcome = OutcomeSkipped
		chunks = s.store.Current().Size()
		s.logger.Info("sync skipped", zap.String("reason", stats.Reason))
	default:
		chunks = stats.Chunks
	}
	if s.observer != nil {
		s.observer.RecordSync(outcome, chunks, elapsed)
	}
	if err != nil {
		return nil, err
	}

	stats.Duration = elapsed
	if !stats.Skipped {
		s.logger.Info("sync completed",
			zap.String("generation", stats.Generation),
			zap.Int("chunks", stats.Chunks),
			zap.Int("batches", stats.Batches),
			zap.Bool("persisted", stats.Persisted),
			zap.Duration("elapsed", elapsed))
	}

	s.mu.Lock()
	s.last = stats
	s.mu.Unlock()
	return stats, nil
}

func (s *Syncer) sync(ctx context.Context, force bool) (*Statistics, error) {
	s.logger.Info("sync started", zap.String("source", s.cfg.Source), zap.Bool("force", force))

	hash, err := HashSource(s.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to hash source: %w", err)
	}

	current := s.store.Current()
	if !force && current.Size() > 0 && current.SourceHash == hash {
		return &Statistics{
			Generation: current.Generation,
			SourceHash: hash,
			Chunks:     current.Size(),
			Skipped:    true,
			Reason:     "source unchanged",
		}, nil
	}

	chunks, err := s.chunker.ChunkPath(s.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk source: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunks, s.cfg.Source)
	}

	vectors, batches, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	snap, err := index.NewSnapshot(chunks, vectors, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	s.publish(snap)

	stats := &Statistics{
		Generation: snap.Generation,
		SourceHash: hash,
		Chunks:     snap.Size(),
		Batches:    batches,
	}

	// The new snapshot is already serving; persistence only affects warm starts.
	if s.storage != nil {
		if err := s.persist(ctx, snap, stats); err != nil {
			s.logger.Warn("failed to persist snapshot", zap.String("generation", snap.Generation), zap.Error(err))
		}
	}
	return stats, nil
}

// embedChunks embeds chunk texts in batches using a bounded worker pool.
// Vectors come back in chunk order.
func (s *Syncer) embedChunks(ctx context.Context, chunks []types.Chunk) ([][]float32, int, error) {
	if s.embedder == nil {
		return nil, 0, errors.New("embedder not initialized")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbedText()
	}
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	batches := 0
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(texts))
		batches++

		g.Go(func() error {
			batch, err := embedder.EmbedBatch(gctx, s.embedder, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return vectors, batches, nil
}

func (s *Syncer) publish(snap *index.Snapshot) {
	s.store.Publish(snap)
	for _, fn := range s.onPublish {
		fn(snap)
	}
}

func (s *Syncer) persist(ctx context.Context, snap *index.Snapshot, stats *Statistics) error {
	rec := &storage.Snapshot{
		Generation: snap.Generation,
		SourceHash: snap.SourceHash,
		Provider:   s.embedder.Provider(),
		Model:      s.embedder.Model(),
		Dimension:  snap.Dense.Dimension(),
		BuiltAt:    snap.BuiltAt,
		Chunks:     snap.Chunks(),
		Vectors:    snap.Vectors(),
	}
	if err := s.storage.SaveSnapshot(ctx, rec); err != nil {
		return err
	}
	stats.Persisted = true

	pruned, err := s.storage.PruneSnapshots(ctx, s.cfg.KeepSnapshots)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	stats.Pruned = pruned
	return nil
}

// WarmStart publishes the most recently persisted snapshot without calling
// the embedding provider. A snapshot embedded by a different model or
// dimension is ignored and Skipped is set on the returned statistics.
func (s *Syncer) WarmStart(ctx context.Context) (*Statistics, error) {
	if s.storage == nil {
		return &Statistics{Skipped: true, Reason: "no storage configured"}, nil
	}

	rec, err := s.storage.LoadLatestSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return &Statistics{Skipped: true, Reason: "no persisted snapshot"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if rec.Model != s.embedder.Model() || rec.Dimension != s.embedder.Dimension() {
		s.logger.Info("persisted snapshot uses a different embedding model",
			zap.String("stored_model", rec.Model),
			zap.Int("stored_dimension", rec.Dimension),
			zap.String("model", s.embedder.Model()))
		return &Statistics{Skipped: true, Reason: "embedding model changed"}, nil
	}

	snap, err := index.RestoreSnapshot(rec.Generation, rec.SourceHash, rec.BuiltAt, rec.Chunks, rec.Vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	s.publish(snap)

	s.logger.Info("warm start",
		zap.String("generation", snap.Generation),
		zap.Int("chunks", snap.Size()),
		zap.Time("built_at", snap.BuiltAt))

	return &Statistics{
		Generation: snap.Generation,
		SourceHash: snap.SourceHash,
		Chunks:     snap.Size(),
	}, nil
}

// Run syncs every interval until ctx is done. Failures are logged and the
// loop keeps going.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sync(ctx, false); err != nil && !errors.Is(err, ErrSyncInProgress) {
				s.logger.Warn("periodic sync failed", zap.Error(err))
			}
		}
	}
}

// HashSource computes a SHA-256 over the source content. For a directory
// the hash covers every markdown file's relative path and content in
// lexical order.
func HashSource(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if !info.IsDir() {
		if err := hashFile(h, path); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	files, err := chunker.MarkdownFiles(path)
	if err != nil {
		return "", err
	}
	for _, file := range files {
		rel, err := filepath.Rel(path, file)
		if err != nil {
			rel = file
		}
		_, _ = io.WriteString(h, filepath.ToSlash(rel))
		_, _ = h.Write([]byte{0})
		if err := hashFile(h, file); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	_, err = io.Copy(w, file)
	return err
}
