// Package indexer keeps the published index snapshot in step with the
// markdown FAQ source.
//
// # Basic Usage
//
//	store := index.NewStore()
//	syncer := indexer.New(store, emb, indexer.Config{Source: "faq/"},
//	    indexer.WithStorage(db),
//	    indexer.OnPublish(func(*index.Snapshot) { s.InvalidateCache() }))
//
//	if _, err := syncer.WarmStart(ctx); err != nil {
//	    return err
//	}
//	stats, err := syncer.Sync(ctx, false)
//
// # Sync Pipeline
//
//  1. Hash: SHA-256 over the source; unchanged sources are skipped
//  2. Chunk: split markdown at headings
//  3. Embed: batches of chunk texts, embedded concurrently
//  4. Build: dense and keyword indices from the same chunk set
//  5. Publish: atomic swap; in-flight queries keep their snapshot
//  6. Persist: save to storage for warm starts, prune old snapshots
//
// Only one sync runs at a time. A concurrent call returns
// ErrSyncInProgress rather than blocking.
//
// Run and Watch drive Sync from a ticker and from file system events
// respectively; both log failures and keep going.
package indexer
