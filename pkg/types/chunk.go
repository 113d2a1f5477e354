package types

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Chunk is a self-contained FAQ section: a heading plus the body text
// underneath it. Chunks are immutable once built into an index.
type Chunk struct {
	ID        string `json:"id"`
	Heading   string `json:"heading"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url"`
}

// Validate checks that the chunk can be indexed.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyChunkID)
	}
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: %w (chunk %s)", ErrValidation, ErrEmptyContent, c.ID)
	}
	return nil
}

// SearchText is the text scored by the keyword index.
func (c Chunk) SearchText() string {
	return c.Heading + " " + c.Content
}

// EmbedText is the text embedded at sync time and scored by cross-encoders.
func (c Chunk) EmbedText() string {
	return c.Heading + "\n" + c.Content
}

// ContentHash returns the SHA-256 of heading and content.
func (c Chunk) ContentHash() [32]byte {
	return sha256.Sum256([]byte(c.EmbedText()))
}

// ValidateChunks validates every chunk and rejects duplicate ids.
func ValidateChunks(chunks []Chunk) error {
	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if _, dup := seen[chunks[i].ID]; dup {
			return fmt.Errorf("%w: %w: %s", ErrValidation, ErrDuplicateChunkID, chunks[i].ID)
		}
		seen[chunks[i].ID] = struct{}{}
	}
	return nil
}
