// Package searcher retrieves FAQ chunks for a question using one of three
// modes over the currently published index snapshot.
//
// The modes, in order of preference when configured:
//   - Reranked: first-stage retrieval (semantic or hybrid) followed by a
//     cross-encoder rescoring, scores in [0, 1]
//   - Hybrid: dense and BM25 retrieval fused with Reciprocal Rank Fusion
//   - Semantic: dense inner-product retrieval only, scores are cosine
//     similarities
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(store, emb, nil, searcher.Hybrid{}, searcher.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//
//	ret, err := s.Retrieve(ctx, "how do I deploy to staging?")
//	if err != nil {
//	    return err
//	}
//	for _, r := range ret.Results {
//	    fmt.Printf("%.3f %s\n", r.Score, r.Chunk.Heading)
//	}
//
// The query is always embedded, even in modes that would not need it for
// ranking, and the vector is returned on the Retrieval for status update
// correlation.
//
// # Reciprocal Rank Fusion (RRF)
//
// Hybrid mode merges the dense and keyword rankings:
//
//	For each result r at 0-indexed position rank in either list:
//	    rrf_score[r.chunk_id] += 1 / (k + rank)
//
//	Sort by rrf_score descending
//
// Where k = 60. A chunk at the top of both lists scores 2/60; fused
// scores never exceed that, so thresholds for hybrid mode live on a very
// different scale from cosine similarity.
//
// # Caching
//
// Retrievals are cached in an LRU keyed by query, mode, result size and
// snapshot generation. Publishing a new snapshot therefore never serves
// stale results; InvalidateCache additionally frees the old entries.
// Entries expire after Config.CacheTTL.
package searcher
