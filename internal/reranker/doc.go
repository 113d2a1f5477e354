// Package reranker re-scores a small candidate set with a cross-encoder.
//
// Cross-encoders read the query and a document together and emit a raw
// logit. Rerank maps logits through the logistic sigmoid so confidence
// thresholds operate on a bounded [0,1] scale, then keeps the best k.
// Reranking is the second stage of retrieval: it only ever sees the tens
// of candidates the dense or hybrid stage produced, never the corpus.
//
// Two encoders are provided. HTTPCrossEncoder talks to a
// text-embeddings-inference compatible /rerank endpoint serving a model
// such as cross-encoder/ms-marco-MiniLM-L-6-v2. LexicalCrossEncoder runs
// offline and scores term coverage, frequency and proximity.
package reranker
