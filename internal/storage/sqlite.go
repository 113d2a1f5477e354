package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dshills/faqgate/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error { return fn(tx) })
}

// Snapshot operations

// SaveSnapshot stores a snapshot and its chunks and vectors atomically.
// snap.ID is set on success.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if len(snap.Chunks) != len(snap.Vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", types.ErrValidation, len(snap.Chunks), len(snap.Vectors))
	}
	for i, vec := range snap.Vectors {
		if len(vec) != snap.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", types.ErrValidation, i, len(vec), snap.Dimension)
		}
	}
	if snap.Generation == "" {
		return fmt.Errorf("%w: snapshot generation is required", types.ErrValidation)
	}
	if snap.BuiltAt.IsZero() {
		snap.BuiltAt = time.Now()
	}

	return s.withTx(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE generation = ?", snap.Generation).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check snapshot: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("snapshot %s: %w", snap.Generation, ErrAlreadyExists)
		}

		result, err := q.ExecContext(ctx, `
			INSERT INTO snapshots (generation, source_hash, provider, model, dimension, chunk_count, built_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, snap.Generation, snap.SourceHash, snap.Provider, snap.Model, snap.Dimension, len(snap.Chunks), snap.BuiltAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}

		for i, c := range snap.Chunks {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO snapshot_chunks (snapshot_id, position, chunk_id, heading, content, source_url)
				VALUES (?, ?, ?, ?, ?, ?)
			`, id, i, c.ID, c.Heading, c.Content, c.SourceURL); err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO snapshot_embeddings (snapshot_id, position, vector) VALUES (?, ?, ?)
			`, id, i, encodeVector(snap.Vectors[i])); err != nil {
				return fmt.Errorf("failed to insert embedding %s: %w", c.ID, err)
			}
		}

		snap.ID = id
		return nil
	})
}

// LoadLatestSnapshot returns the most recently built snapshot
func (s *SQLiteStorage) LoadLatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	var builtAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, generation, source_hash, provider, model, dimension, built_at
		FROM snapshots
		ORDER BY built_at DESC, id DESC
		LIMIT 1
	`).Scan(&snap.ID, &snap.Generation, &snap.SourceHash, &snap.Provider, &snap.Model, &snap.Dimension, &builtAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap.BuiltAt = time.Unix(0, builtAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.heading, c.content, c.source_url, e.vector
		FROM snapshot_chunks c
		JOIN snapshot_embeddings e ON e.snapshot_id = c.snapshot_id AND e.position = c.position
		WHERE c.snapshot_id = ?
		ORDER BY c.position
	`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c types.Chunk
		var url sql.NullString
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Heading, &c.Content, &url, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := decodeVector(blob, snap.Dimension)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s chunk %s: %w", snap.Generation, c.ID, err)
		}
		c.SourceURL = url.String
		snap.Chunks = append(snap.Chunks, c)
		snap.Vectors = append(snap.Vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// PruneSnapshots deletes all but the keep most recent snapshots
func (s *SQLiteStorage) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY built_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Interaction operations

// LogInteraction inserts rec and sets rec.ID
func (s *SQLiteStorage) LogInteraction(ctx context.Context, rec *Interaction) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	chunkIDs, err := marshalStrings(rec.ChunkIDs)
	if err != nil {
		return err
	}
	reactions, err := marshalStrings(rec.UserReactions)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (
			timestamp, interaction_type, user_id, channel_id, thread_ts,
			question_text, answered, outcome, mode, reason,
			confidence_score, confidence_ratio, answer_text, chunk_ids,
			status_updates_shown, user_clicked_button, user_reactions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Timestamp.UnixNano(), rec.Type, rec.UserID, rec.ChannelID, rec.ThreadTS,
		rec.Question, boolToInt(rec.Answered), rec.Outcome, rec.Mode, rec.Reason,
		nullFloat(rec.ConfidenceScore), nullFloat(rec.ConfidenceRatio), rec.Answer, chunkIDs,
		rec.StatusUpdatesShown, boolToInt(rec.UserClickedButton), reactions)
	if err != nil {
		return fmt.Errorf("failed to log interaction: %w", err)
	}
	rec.ID, err = result.LastInsertId()
	return err
}

// ListInteractions returns matching interactions, newest first
func (s *SQLiteStorage) ListInteractions(ctx context.Context, filter InteractionFilter) ([]*Interaction, error) {
	var query strings.Builder
	query.WriteString(`
		SELECT id, timestamp, interaction_type, user_id, channel_id, thread_ts,
		       question_text, answered, outcome, mode, reason,
		       confidence_score, confidence_ratio, answer_text, chunk_ids,
		       status_updates_shown, user_clicked_button, user_reactions
		FROM interactions WHERE 1=1`)
	var args []interface{}

	if !filter.Since.IsZero() {
		query.WriteString(" AND timestamp >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		query.WriteString(" AND timestamp <= ?")
		args = append(args, filter.Until.UnixNano())
	}
	if filter.Type != "" {
		query.WriteString(" AND interaction_type = ?")
		args = append(args, filter.Type)
	}
	if filter.AnsweredOnly {
		query.WriteString(" AND answered = 1")
	}
	query.WriteString(" ORDER BY timestamp DESC, id DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Interaction
	for rows.Next() {
		rec, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanInteraction(rows *sql.Rows) (*Interaction, error) {
	var (
		rec                 Interaction
		ts                  int64
		answered, clicked   int
		score, ratio        sql.NullFloat64
		answer              sql.NullString
		chunkIDs, reactions string
	)
	err := rows.Scan(&rec.ID, &ts, &rec.Type, &rec.UserID, &rec.ChannelID, &rec.ThreadTS,
		&rec.Question, &answered, &rec.Outcome, &rec.Mode, &rec.Reason,
		&score, &ratio, &answer, &chunkIDs,
		&rec.StatusUpdatesShown, &clicked, &reactions)
	if err != nil {
		return nil, fmt.Errorf("failed to scan interaction: %w", err)
	}
	rec.Timestamp = time.Unix(0, ts)
	rec.Answered = answered != 0
	rec.UserClickedButton = clicked != 0
	rec.Answer = answer.String
	if score.Valid {
		rec.ConfidenceScore = &score.Float64
	}
	if ratio.Valid {
		rec.ConfidenceRatio = &ratio.Float64
	}
	if err := json.Unmarshal([]byte(chunkIDs), &rec.ChunkIDs); err != nil {
		return nil, fmt.Errorf("invalid chunk_ids for interaction %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(reactions), &rec.UserReactions); err != nil {
		return nil, fmt.Errorf("invalid user_reactions for interaction %d: %w", rec.ID, err)
	}
	return &rec, nil
}

// UpdateEngagement records a button click and/or reaction on the newest
// interaction in a thread.
func (s *SQLiteStorage) UpdateEngagement(ctx context.Context, threadTS string, clicked bool, reaction string) error {
	return s.withTx(ctx, func(q querier) error {
		var id int64
		var reactions string
		err := q.QueryRowContext(ctx, `
			SELECT id, user_reactions FROM interactions
			WHERE thread_ts = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		`, threadTS).Scan(&id, &reactions)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to find interaction: %w", err)
		}

		if clicked {
			if _, err := q.ExecContext(ctx, "UPDATE interactions SET user_clicked_button = 1 WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to record click: %w", err)
			}
		}
		if reaction != "" {
			var list []string
			if err := json.Unmarshal([]byte(reactions), &list); err != nil {
				return fmt.Errorf("invalid user_reactions for interaction %d: %w", id, err)
			}
			list = append(list, reaction)
			encoded, err := marshalStrings(list)
			if err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, "UPDATE interactions SET user_reactions = ? WHERE id = ?", encoded, id); err != nil {
				return fmt.Errorf("failed to record reaction: %w", err)
			}
		}
		return nil
	})
}

// InteractionStats aggregates interactions at or after since
func (s *SQLiteStorage) InteractionStats(ctx context.Context, since time.Time) (*InteractionStats, error) {
	stats := &InteractionStats{
		ByType:    make(map[string]int),
		ByOutcome: make(map[string]int),
	}
	sinceNano := int64(0)
	if !since.IsZero() {
		sinceNano = since.UnixNano()
	}

	var avg sql.NullFloat64
	var shown sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(answered), 0),
		       AVG(CASE WHEN answered = 1 THEN confidence_score END),
		       SUM(status_updates_shown)
		FROM interactions WHERE timestamp >= ?
	`, sinceNano).Scan(&stats.Total, &stats.Answered, &avg, &shown)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate interactions: %w", err)
	}
	stats.AvgConfidence = avg.Float64
	stats.StatusUpdatesShown = int(shown.Int64)
	if stats.Total > 0 {
		stats.AnswerRate = float64(stats.Answered) / float64(stats.Total)
	}

	if err := s.countBy(ctx, "interaction_type", sinceNano, stats.ByType); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "outcome", sinceNano, stats.ByOutcome); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy fills out with row counts grouped by column, which must be a
// trusted column name.
func (s *SQLiteStorage) countBy(ctx context.Context, column string, sinceNano int64, out map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM interactions WHERE timestamp >= ? GROUP BY "+column, sinceNano)
	if err != nil {
		return fmt.Errorf("failed to group interactions by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		out[key] = n
	}
	return rows.Err()
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{BuildMode: BuildMode}

	current, err := currentSchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = current.String()
	if err := s.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&status.SQLiteVersion); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&status.Snapshots); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM interactions").Scan(&status.Interactions); err != nil {
		return nil, err
	}

	var builtAt int64
	err = s.db.QueryRowContext(ctx, "SELECT built_at, chunk_count FROM snapshots ORDER BY built_at DESC, id DESC LIMIT 1").
		Scan(&builtAt, &status.LatestChunks)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		status.LatestBuiltAt = time.Unix(0, builtAt)
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}
	status.DatabaseHealthy = s.db.PingContext(ctx) == nil

	return status, nil
}

func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullFloat stores nil and non-finite values (an infinite ratio) as NULL.
func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil || math.IsInf(*v, 0) || math.IsNaN(*v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
