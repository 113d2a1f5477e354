// Package embedder turns FAQ text and user questions into unit-length
// vectors.
//
// Every provider returns L2-normalized vectors, so the inner product of two
// embeddings is their cosine similarity. Index-time and query-time vectors
// must come from the same provider and model.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "auto"})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vec, err := embedder.Embed(ctx, emb, "How do I reset my password?")
//
// # Batch Processing
//
// EmbedBatch splits its input into MaxBatchSize requests and returns the
// vectors in input order:
//
//	vectors, err := embedder.EmbedBatch(ctx, emb, texts)
//
// # Provider Selection
//
//  1. If FAQGATE_EMBEDDING_PROVIDER is set, use that provider
//  2. Else if JINA_API_KEY is set, use Jina AI
//  3. Else if OPENAI_API_KEY is set, use OpenAI
//  4. Else fall back to the offline local provider
//
// The local provider uses signed feature hashing over word tokens. It is
// deterministic and needs no network, which makes it the provider used by
// tests and air-gapped deployments.
//
// # Errors
//
// Remote calls retry transient failures (transport errors, 408, 429, 5xx)
// with exponential backoff. Anything else, including zero vectors and
// dimension mismatches, surfaces as ErrProviderFailed, which wraps
// types.ErrProviderFailure.
package embedder
