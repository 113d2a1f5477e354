// Package storage provides SQLite-based persistence for index snapshots
// and the interaction log.
//
// The storage layer manages:
//   - Snapshots: every published index build with its chunks and vectors,
//     so a restart can serve immediately without re-embedding
//   - Interactions: one row per answered, rejected, or failed question
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations (semver)
//   - snapshots: generation, source hash, embedding model, build time
//   - snapshot_chunks: chunk text in build order
//   - snapshot_embeddings: little-endian float32 vectors per chunk
//   - interactions: question, outcome, confidence, chunks used, engagement
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.faqgate/faqgate.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.SaveSnapshot(ctx, &storage.Snapshot{
//	    Generation: snap.Generation,
//	    SourceHash: snap.SourceHash,
//	    Chunks:     snap.Chunks(),
//	    Vectors:    snap.Vectors(),
//	}); err != nil {
//	    return err
//	}
//
// SaveSnapshot writes the snapshot row, chunks, and embeddings in one
// transaction; a failed save leaves the previous snapshot as the latest.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags cgo_sqlite switches to github.com/mattn/go-sqlite3.
package storage
