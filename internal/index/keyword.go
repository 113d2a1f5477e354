package index

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/dshills/faqgate/pkg/types"
)

// BM25 parameters
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// KeywordIndex ranks chunks with Okapi BM25 over heading + " " + content.
type KeywordIndex struct {
	k1    float64
	b     float64
	state atomic.Pointer[keywordState]
}

type keywordState struct {
	chunks []types.Chunk
	tf     []map[string]int
	docLen []int
	avgdl  float64
	idf    map[string]float64
}

// NewKeywordIndex returns an empty index with standard BM25 parameters.
func NewKeywordIndex() *KeywordIndex {
	return NewKeywordIndexWithParams(DefaultK1, DefaultB)
}

// NewKeywordIndexWithParams returns an empty index with custom k1 and b.
func NewKeywordIndexWithParams(k1, b float64) *KeywordIndex {
	idx := &KeywordIndex{k1: k1, b: b}
	idx.state.Store(&keywordState{idf: map[string]float64{}})
	return idx
}

// Build tokenizes every chunk and precomputes document frequencies.
func (idx *KeywordIndex) Build(chunks []types.Chunk) error {
	if err := types.ValidateChunks(chunks); err != nil {
		return err
	}

	st := &keywordState{
		chunks: append([]types.Chunk(nil), chunks...),
		tf:     make([]map[string]int, len(chunks)),
		docLen: make([]int, len(chunks)),
		idf:    make(map[string]float64),
	}

	df := make(map[string]int)
	total := 0
	for i, c := range chunks {
		tokens := types.Tokenize(c.SearchText())
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for tok := range freqs {
			df[tok]++
		}
		st.tf[i] = freqs
		st.docLen[i] = len(tokens)
		total += len(tokens)
	}

	if len(chunks) > 0 {
		st.avgdl = float64(total) / float64(len(chunks))
	}
	n := float64(len(chunks))
	for term, freq := range df {
		st.idf[term] = math.Log(1 + (n-float64(freq)+0.5)/(float64(freq)+0.5))
	}

	idx.state.Store(st)
	return nil
}

// Search scores every chunk against the tokenized query and returns up to
// k chunks with a strictly positive score, best first. Ties keep insertion
// order. Repeated query terms count once per occurrence.
func (idx *KeywordIndex) Search(query string, k int) []types.SearchResult {
	st := idx.state.Load()
	terms := types.Tokenize(query)
	if len(st.chunks) == 0 || len(terms) == 0 || k <= 0 || st.avgdl == 0 {
		return []types.SearchResult{}
	}

	candidates := make([]candidate, 0, len(st.chunks))
	for i := range st.chunks {
		score := idx.score(st, i, terms)
		if score > 0 {
			candidates = append(candidates, candidate{pos: i, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := min(k, len(candidates))
	results := make([]types.SearchResult, n)
	for i := 0; i < n; i++ {
		results[i] = types.SearchResult{
			Chunk: st.chunks[candidates[i].pos],
			Score: candidates[i].score,
		}
	}
	return results
}

func (idx *KeywordIndex) score(st *keywordState, doc int, terms []string) float64 {
	var score float64
	dl := float64(st.docLen[doc])
	norm := idx.k1 * (1 - idx.b + idx.b*dl/st.avgdl)
	for _, term := range terms {
		tf := float64(st.tf[doc][term])
		if tf == 0 {
			continue
		}
		score += st.idf[term] * tf * (idx.k1 + 1) / (tf + norm)
	}
	return score
}

// Size returns the number of indexed chunks.
func (idx *KeywordIndex) Size() int {
	return len(idx.state.Load().chunks)
}
