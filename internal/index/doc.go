// Package index holds the in-memory retrieval indices for FAQ chunks.
//
// DenseIndex does exact inner-product search over unit vectors. FAQ corpora
// are small, so a linear scan is both exact and fast. KeywordIndex ranks
// chunks with Okapi BM25 (k1=1.5, b=0.75) using the non-negative idf form
// ln(1 + (N-df+0.5)/(df+0.5)), and drops chunks that score zero.
//
// Both indices swap their internal state atomically on Build. A Snapshot
// ties a dense and a keyword index built from the same chunks together, and
// a Store publishes snapshots so that a sync can rebuild everything off to
// the side while queries keep reading the previous generation:
//
//	snap, err := index.NewSnapshot(chunks, vectors, sourceHash)
//	if err != nil {
//	    return err
//	}
//	store.Publish(snap)
//
//	cur := store.Current()
//	dense, err := cur.Dense.Search(queryVec, 5)
//	keyword := cur.Keyword.Search(question, 5)
package index
