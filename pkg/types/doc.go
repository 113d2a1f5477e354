// Package types provides shared type definitions for faqgate.
//
// Chunk is the unit of FAQ content: a heading, its body text and a source
// URL pointing back at the original document. SearchResult pairs a chunk
// with the score one ranking stage assigned it.
//
//	chunk := types.Chunk{
//	    ID:        "line_12",
//	    Heading:   "How do I reset my password?",
//	    Content:   "Visit the account page and click reset.",
//	    SourceURL: "file://faq.md#L12",
//	}
//
// # Errors
//
// The error taxonomy is shared by all packages:
//
//	errors.Is(err, types.ErrValidation)        // malformed input
//	errors.Is(err, types.ErrProviderFailure)   // embedding or scoring backend failed
//	errors.Is(err, types.ErrGenerationFailure) // answer generator failed
//
// A question with no usable evidence is not an error. It is reported as an
// outcome on the answer result.
package types
