package storage

import (
	"context"
	"time"

	"github.com/dshills/faqgate/pkg/types"
)

// Storage persists index snapshots for warm starts and the interaction log
type Storage interface {
	// Snapshot operations
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadLatestSnapshot(ctx context.Context) (*Snapshot, error)
	PruneSnapshots(ctx context.Context, keep int) (deleted int, err error)

	// Interaction operations
	LogInteraction(ctx context.Context, rec *Interaction) error
	ListInteractions(ctx context.Context, filter InteractionFilter) ([]*Interaction, error)
	UpdateEngagement(ctx context.Context, threadTS string, clicked bool, reaction string) error
	InteractionStats(ctx context.Context, since time.Time) (*InteractionStats, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// Snapshot is a persisted index build: the chunks, their vectors, and the
// embedding model that produced them.
type Snapshot struct {
	ID         int64
	Generation string
	SourceHash string
	Provider   string
	Model      string
	Dimension  int
	BuiltAt    time.Time
	Chunks     []types.Chunk
	Vectors    [][]float32
}

// Interaction types
const (
	InteractionAsk    = "ask"
	InteractionSearch = "search"
	InteractionAuto   = "auto_answer"
)

// Interaction is one question handled by the bot
type Interaction struct {
	ID                 int64
	Timestamp          time.Time
	Type               string
	UserID             string
	ChannelID          string
	ThreadTS           string
	Question           string
	Answered           bool
	Outcome            string
	Mode               string
	Reason             string
	ConfidenceScore    *float64 // Nullable
	ConfidenceRatio    *float64 // Nullable
	Answer             string
	ChunkIDs           []string
	StatusUpdatesShown int
	UserClickedButton  bool
	UserReactions      []string
}

// InteractionFilter narrows ListInteractions. Zero values do not filter.
type InteractionFilter struct {
	Since        time.Time
	Until        time.Time
	Type         string
	AnsweredOnly bool
	Limit        int
}

// InteractionStats aggregates the interaction log
type InteractionStats struct {
	Total              int
	Answered           int
	AnswerRate         float64
	AvgConfidence      float64 // over answered interactions with a score
	StatusUpdatesShown int
	ByType             map[string]int
	ByOutcome          map[string]int
}

// Status contains statistics about the stored data
type Status struct {
	SchemaVersion   string
	BuildMode       string
	SQLiteVersion   string
	Snapshots       int
	LatestBuiltAt   time.Time
	LatestChunks    int
	Interactions    int
	DatabaseSizeMB  float64
	DatabaseHealthy bool
}
