package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion is the version of the newest entry in AllMigrations.
const CurrentSchemaVersion = "1.1.0"

// Migration is one schema step. Down must exactly undo Up.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations is ordered oldest first.
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per published index build
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    generation TEXT NOT NULL UNIQUE,
    source_hash TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    chunk_count INTEGER NOT NULL,
    built_at INTEGER NOT NULL, -- unix nanoseconds
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshots_built_at ON snapshots(built_at);

-- Chunks in build order
CREATE TABLE IF NOT EXISTS snapshot_chunks (
    snapshot_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    chunk_id TEXT NOT NULL,
    heading TEXT NOT NULL,
    content TEXT NOT NULL,
    source_url TEXT,
    PRIMARY KEY (snapshot_id, position),
    FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);

-- Embeddings table
CREATE TABLE IF NOT EXISTS snapshot_embeddings (
    snapshot_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    vector BLOB NOT NULL,
    PRIMARY KEY (snapshot_id, position),
    FOREIGN KEY (snapshot_id, position) REFERENCES snapshot_chunks(snapshot_id, position) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS snapshot_embeddings;
DROP TABLE IF EXISTS snapshot_chunks;
DROP TABLE IF EXISTS snapshots;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
-- Interaction log
CREATE TABLE IF NOT EXISTS interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER NOT NULL, -- unix nanoseconds
    interaction_type TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    channel_id TEXT NOT NULL DEFAULT '',
    thread_ts TEXT NOT NULL DEFAULT '',
    question_text TEXT NOT NULL,
    answered INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    mode TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    confidence_score REAL,
    confidence_ratio REAL,
    answer_text TEXT,
    chunk_ids TEXT NOT NULL DEFAULT '[]',
    status_updates_shown INTEGER DEFAULT 0,
    user_clicked_button INTEGER DEFAULT 0,
    user_reactions TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_interactions_type ON interactions(interaction_type);
CREATE INDEX IF NOT EXISTS idx_interactions_thread ON interactions(thread_ts);
`

const migrationV11Down = `
DROP TABLE IF EXISTS interactions;
`

// ErrSchemaTooNew means the database was written by a newer faqgate.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

var zeroVersion = semver.MustParse("0.0.0")

// ApplyMigrations brings db up to CurrentSchemaVersion. Each migration
// runs in its own transaction together with its schema_version row, so a
// failure leaves the database at the previous version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.GreaterThan(semver.MustParse(CurrentSchemaVersion)) {
		return fmt.Errorf("%w: have %s, support %s", ErrSchemaTooNew, current, CurrentSchemaVersion)
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		if err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.Version)
			return err
		}); err != nil {
			return fmt.Errorf("migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}

// RollbackMigration undoes the newest applied migration.
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(zeroVersion) {
		return fmt.Errorf("%w: no migrations applied", ErrNotFound)
	}

	idx := -1
	for i, m := range AllMigrations {
		if v, err := semver.NewVersion(m.Version); err == nil && v.Equal(current) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: migration %s", ErrNotFound, current)
	}
	m := AllMigrations[idx]

	return inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return fmt.Errorf("rollback %s: %w", m.Version, err)
		}
		// The first migration's Down drops schema_version itself.
		if idx == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", m.Version)
		return err
	})
}

// currentSchemaVersion returns the highest recorded version, or 0.0.0 for
// a fresh database. Rows are compared as semver, not by apply order.
func currentSchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if n == 0 {
		return zeroVersion, nil
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := zeroVersion
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan schema_version: %w", err)
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid recorded schema version %q: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
