// Package chunker divides markdown FAQ documents into heading-scoped chunks
// for embedding and search.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks, err := c.ChunkPath("/srv/faq/FAQ.md")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("%s %q (%s)\n", chunk.ID, chunk.Heading, chunk.SourceURL)
//	}
//
// # Chunking Strategy
//
// Every ATX heading (# through ######) starts a chunk that runs until the
// next heading of any level:
//   - ID: "line_N" where N is the 1-indexed heading line
//   - SourceURL: "file://<path>#LN"
//   - Content: the trimmed lines between the headings
//
// Text before the first heading is not indexed, and headings with no body
// produce no chunk. Sections estimated above MaxTokensPerChunk (chars/4)
// are split at blank lines; the extra parts get "_p2", "_p3" suffixes and
// share the heading and URL.
//
// When the source is a directory, every .md file is chunked and IDs are
// prefixed with the file's relative path ("ops/deploy.md:line_3").
package chunker
