package chunker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFAQ = `Intro text that is not under a heading.

# Deploy
Use kubectl apply.

Check the rollout.

## Empty Section

### Rollback
Run kubectl rollout undo.
#NotAHeading
`

func TestNew(t *testing.T) {
	c := New()
	assert.NotNil(t, c)
	assert.Equal(t, MaxTokensPerChunk, c.maxTokens)
}

func TestParseBlocks(t *testing.T) {
	blocks := ParseBlocks(sampleFAQ)
	require.Len(t, blocks, 13)

	assert.Equal(t, Block{Type: BlockText, Text: "Intro text that is not under a heading.", Line: 1}, blocks[0])
	assert.Equal(t, Block{Type: BlockText, Text: "", Line: 2}, blocks[1])
	assert.Equal(t, Block{Type: BlockHeading, Level: 1, Text: "Deploy", Line: 3}, blocks[2])
	assert.Equal(t, Block{Type: BlockHeading, Level: 2, Text: "Empty Section", Line: 8}, blocks[7])
	assert.Equal(t, Block{Type: BlockHeading, Level: 3, Text: "Rollback", Line: 10}, blocks[9])
	assert.Equal(t, BlockText, blocks[11].Type, "#NotAHeading needs a space")
}

func TestChunkMarkdown(t *testing.T) {
	c := New()
	chunks := c.ChunkMarkdown(ParseBlocks(sampleFAQ), "/srv/faq.md")
	require.Len(t, chunks, 2)

	assert.Equal(t, "line_3", chunks[0].ID)
	assert.Equal(t, "Deploy", chunks[0].Heading)
	assert.Equal(t, "Use kubectl apply.\n\nCheck the rollout.", chunks[0].Content)
	assert.Equal(t, "file:///srv/faq.md#L3", chunks[0].SourceURL)

	assert.Equal(t, "line_10", chunks[1].ID)
	assert.Equal(t, "Run kubectl rollout undo.\n#NotAHeading", chunks[1].Content)

	for _, ch := range chunks {
		assert.NoError(t, ch.Validate())
	}
}

func TestChunkMarkdownEdgeCases(t *testing.T) {
	c := New()
	assert.Empty(t, c.ChunkMarkdown(ParseBlocks(""), "f.md"))
	assert.Empty(t, c.ChunkMarkdown(ParseBlocks("no headings here"), "f.md"))
	assert.Empty(t, c.ChunkMarkdown(ParseBlocks("# A\n# B\n"), "f.md"))

	// heading text that trims to nothing does not open a chunk
	assert.Empty(t, c.ChunkMarkdown(ParseBlocks("#   \nbody"), "f.md"))
}

func TestSplitOversized(t *testing.T) {
	c := NewWithMaxTokens(10) // 40 chars
	para := strings.Repeat("x", 30)
	text := para + "\n\n" + para + "\n\n" + para

	parts := c.SplitOversized(text)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.Equal(t, para, p)
	}

	assert.Equal(t, []string{"short"}, c.SplitOversized("short"))
	assert.Equal(t, []string{text}, NewWithMaxTokens(0).SplitOversized(text))

	chunks := c.ChunkMarkdown(ParseBlocks("# Big\n"+text), "f.md")
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"line_1", "line_1_p2", "line_1_p3"}, []string{chunks[0].ID, chunks[1].ID, chunks[2].ID})
	assert.Equal(t, "Big", chunks[2].Heading)
	assert.Equal(t, "file://f.md#L1", chunks[2].SourceURL)
}

func TestChunkPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ops"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A\nalpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops", "b.md"), []byte("# B\nbeta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "c.md"), []byte("# C\ngamma"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("# D\ndelta"), 0o644))

	c := New()
	chunks, err := c.ChunkPath(dir)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.md:line_1", chunks[0].ID)
	assert.Equal(t, "ops/b.md:line_1", chunks[1].ID)

	single, err := c.ChunkPath(filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "line_1", single[0].ID)

	_, err = c.ChunkPath(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 2, EstimateTokenCount("12345678"))
}
