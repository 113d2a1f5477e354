package pipeline

import (
	"context"

	"github.com/dshills/faqgate/internal/searcher"
	"github.com/dshills/faqgate/pkg/types"
)

// Suggestion defaults
const (
	DefaultSuggestionMinSimilarity = 0.50
	DefaultSuggestionCount         = 5
	PreviewChars                   = 200
)

// Suggestion is an FAQ entry offered to a user instead of an answer.
type Suggestion struct {
	ChunkID    string  `json:"chunk_id"`
	Heading    string  `json:"heading"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
	URL        string  `json:"url"`
}

// Suggestions lists related FAQ entries for a query. It always ranks
// semantically, so MinSimilarity is on the cosine scale whatever mode the
// answering pipeline uses.
type Suggestions struct {
	searcher      *searcher.Searcher
	minSimilarity float64
}

// NewSuggestions creates a suggestion service. minSimilarity <= 0 uses
// DefaultSuggestionMinSimilarity.
func NewSuggestions(s *searcher.Searcher, minSimilarity float64) *Suggestions {
	if minSimilarity <= 0 {
		minSimilarity = DefaultSuggestionMinSimilarity
	}
	return &Suggestions{searcher: s, minSimilarity: minSimilarity}
}

// Search returns up to k suggestions at or above the similarity floor,
// best first.
func (s *Suggestions) Search(ctx context.Context, query string, k int) ([]Suggestion, error) {
	if k <= 0 {
		k = DefaultSuggestionCount
	}
	ret, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    k,
		Mode:     searcher.Semantic{},
		UseCache: true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Suggestion, 0, len(ret.Results))
	for _, r := range ret.Results {
		if r.Score < s.minSimilarity {
			continue
		}
		out = append(out, Suggestion{
			ChunkID:    r.Chunk.ID,
			Heading:    r.Chunk.Heading,
			Preview:    types.TruncateRunes(r.Chunk.Content, PreviewChars),
			Similarity: r.Score,
			URL:        r.Chunk.SourceURL,
		})
	}
	return out, nil
}
