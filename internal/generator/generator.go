package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/faqgate/pkg/types"
)

// Common errors
var (
	ErrEmptyAnswer = fmt.Errorf("%w: generator returned no text", types.ErrGenerationFailure)
	ErrAPI         = fmt.Errorf("%w: model API error", types.ErrGenerationFailure)
)

// Provider names accepted by New.
const (
	ProviderAnthropic  = "anthropic"
	ProviderExtractive = "extractive"
)

// Generator turns a question and its ranked evidence into answer text. An
// empty answer with a nil error means the generator had nothing usable.
type Generator interface {
	Generate(ctx context.Context, question string, results []types.SearchResult) (string, error)
	Name() string
}

// SystemPrompt constrains the model to the retrieved FAQ context.
const SystemPrompt = `You are a helpful FAQ bot that answers questions based ONLY on the provided context from the team FAQ.

Rules:
1. Answer ONLY using information from the provided context
2. If the context doesn't contain the answer, say "I don't have information about that in the FAQ"
3. Keep answers concise (2-6 bullet points)
4. Always include a "Sources:" section at the end with the FAQ links
5. Use a helpful, professional tone
6. Do not make up or infer information not in the context`

// BuildUserPrompt renders the question and numbered context blocks.
func BuildUserPrompt(question string, results []types.SearchResult) string {
	var ctxText strings.Builder
	for i, r := range results {
		fmt.Fprintf(&ctxText, "[Context %d]\n", i+1)
		fmt.Fprintf(&ctxText, "Heading: %s\n", r.Chunk.Heading)
		fmt.Fprintf(&ctxText, "Content: %s\n", r.Chunk.Content)
		fmt.Fprintf(&ctxText, "Source: %s\n\n", r.Chunk.SourceURL)
	}

	return fmt.Sprintf(`Question: %s

Context from FAQ:
%s
Please answer the question using only the context provided above. Format your answer as 2-6 bullet points, and include a "Sources:" section at the end with the relevant FAQ links.`,
		question, ctxText.String())
}

// Extractive answers without a model by quoting the leading sentence of
// each result. It is deterministic and works offline.
type Extractive struct {
	MaxBullets int
}

// NewExtractive returns an extractive generator quoting up to maxBullets
// results. maxBullets <= 0 means 3.
func NewExtractive(maxBullets int) *Extractive {
	if maxBullets <= 0 {
		maxBullets = 3
	}
	return &Extractive{MaxBullets: maxBullets}
}

func (e *Extractive) Name() string { return ProviderExtractive }

func (e *Extractive) Generate(ctx context.Context, _ string, results []types.SearchResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	var sources []string
	seen := make(map[string]bool)
	for _, r := range types.Truncate(results, e.MaxBullets) {
		sentence := leadingSentence(r.Chunk.Content)
		if sentence == "" {
			continue
		}
		if r.Chunk.Heading != "" {
			fmt.Fprintf(&b, "• *%s*: %s\n", r.Chunk.Heading, sentence)
		} else {
			fmt.Fprintf(&b, "• %s\n", sentence)
		}
		if url := r.Chunk.SourceURL; url != "" && !seen[url] {
			seen[url] = true
			sources = append(sources, url)
		}
	}
	if b.Len() == 0 {
		return "", nil
	}
	if len(sources) > 0 {
		b.WriteString("\nSources:\n")
		for _, s := range sources {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// leadingSentence returns the first sentence or line of text, trimmed.
func leadingSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	for i, r := range text {
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(text) || text[i+1] == ' ') {
			return text[:i+1]
		}
	}
	return text
}
