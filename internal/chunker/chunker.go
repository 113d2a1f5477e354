package chunker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/faqgate/pkg/types"
)

const (
	// MaxTokensPerChunk is the target maximum token count per chunk
	MaxTokensPerChunk = 1000

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// BlockType distinguishes headings from body lines.
type BlockType int

const (
	BlockText BlockType = iota
	BlockHeading
)

// Block is one line of a markdown document.
type Block struct {
	Type  BlockType
	Level int // 1-6 for headings, 0 for text
	Text  string
	Line  int // 1-indexed
}

// ParseBlocks splits markdown content into one block per line. ATX
// headings (# through ######) become heading blocks with trimmed text;
// every other line, blank ones included, is a text block.
func ParseBlocks(content string) []Block {
	lines := strings.Split(content, "\n")
	blocks := make([]Block, 0, len(lines))
	for i, line := range lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			blocks = append(blocks, Block{
				Type:  BlockHeading,
				Level: len(m[1]),
				Text:  strings.TrimSpace(m[2]),
				Line:  i + 1,
			})
			continue
		}
		text := line
		if strings.TrimSpace(line) == "" {
			text = ""
		}
		blocks = append(blocks, Block{Type: BlockText, Text: text, Line: i + 1})
	}
	return blocks
}

// Chunker turns markdown FAQ documents into heading-scoped chunks
type Chunker struct {
	maxTokens int
}

// New creates a new Chunker instance
func New() *Chunker {
	return &Chunker{maxTokens: MaxTokensPerChunk}
}

// NewWithMaxTokens creates a Chunker that splits sections above maxTokens.
// maxTokens <= 0 disables splitting.
func NewWithMaxTokens(maxTokens int) *Chunker {
	return &Chunker{maxTokens: maxTokens}
}

// ChunkMarkdown groups blocks into one chunk per heading, holding every
// line up to the next heading. Chunk IDs are "line_N" and URLs
// "file://path#LN", N being the heading's line. Text before the first
// heading and sections with no content are dropped. Oversized sections are
// split at blank lines into parts "line_N", "line_N_p2", and so on.
func (c *Chunker) ChunkMarkdown(blocks []Block, path string) []types.Chunk {
	var (
		chunks  []types.Chunk
		heading string
		line    int
		content []string
	)

	flush := func() {
		if heading == "" {
			return
		}
		text := strings.TrimSpace(strings.Join(content, "\n"))
		if text == "" {
			return
		}
		id := fmt.Sprintf("line_%d", line)
		url := fmt.Sprintf("file://%s#L%d", path, line)
		for i, part := range c.SplitOversized(text) {
			partID := id
			if i > 0 {
				partID = fmt.Sprintf("%s_p%d", id, i+1)
			}
			chunks = append(chunks, types.Chunk{ID: partID, Heading: heading, Content: part, SourceURL: url})
		}
	}

	for _, b := range blocks {
		switch b.Type {
		case BlockHeading:
			flush()
			heading, line, content = b.Text, b.Line, nil
		case BlockText:
			content = append(content, b.Text)
		}
	}
	flush()

	return chunks
}

// SplitOversized splits text exceeding the token budget at paragraph
// boundaries. A single paragraph larger than the budget stays whole.
func (c *Chunker) SplitOversized(text string) []string {
	if c.maxTokens <= 0 || EstimateTokenCount(text) <= c.maxTokens {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && EstimateTokenCount(current.String()+"\n\n"+para) > c.maxTokens {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// ChunkFile reads a markdown file and chunks it
func (c *Chunker) ChunkFile(path string) ([]types.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return c.ChunkMarkdown(ParseBlocks(string(content)), path), nil
}

// ChunkPath chunks a single markdown file, or every .md file below a
// directory in lexical order. Chunks from a directory are prefixed with
// their file's relative path so IDs stay unique.
func (c *Chunker) ChunkPath(path string) ([]types.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return c.ChunkFile(path)
	}

	files, err := MarkdownFiles(path)
	if err != nil {
		return nil, err
	}
	var all []types.Chunk
	for _, file := range files {
		chunks, err := c.ChunkFile(file)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(path, file)
		if err != nil {
			rel = file
		}
		for i := range chunks {
			chunks[i].ID = filepath.ToSlash(rel) + ":" + chunks[i].ID
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// MarkdownFiles lists .md files under root, sorted, skipping hidden
// directories.
func MarkdownFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".md") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
