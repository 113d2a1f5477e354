package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/faqgate/internal/retry"
	"github.com/dshills/faqgate/pkg/types"
)

// Encoder names
const (
	EncoderHTTP    = "http"
	EncoderLexical = "lexical"
)

// HTTPConfig configures an HTTPCrossEncoder.
type HTTPConfig struct {
	// URL is the server root; requests go to URL + "/rerank".
	URL               string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	// Retry defaults to retry.DefaultPolicy when MaxAttempts is zero.
	Retry             retry.Policy
	HTTPClient        *http.Client
}

// HTTPCrossEncoder calls a text-embeddings-inference style /rerank
// endpoint with raw_scores enabled so it returns logits.
type HTTPCrossEncoder struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Policy
}

// NewHTTPCrossEncoder creates a remote cross-encoder client.
func NewHTTPCrossEncoder(cfg HTTPConfig) (*HTTPCrossEncoder, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: rerank url is required", types.ErrValidation)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &HTTPCrossEncoder{
		endpoint:   strings.TrimRight(cfg.URL, "/") + "/rerank",
		apiKey:     cfg.APIKey,
		httpClient: client,
		limiter:    limiter,
		retry:      cfg.Retry,
	}, nil
}

func (h *HTTPCrossEncoder) Name() string { return EncoderHTTP }

// Score sends one request per distinct query. In practice all pairs share
// the same query.
func (h *HTTPCrossEncoder) Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	start := 0
	for start < len(pairs) {
		end := start + 1
		for end < len(pairs) && pairs[end].Query == pairs[start].Query {
			end++
		}
		texts := make([]string, 0, end-start)
		for _, p := range pairs[start:end] {
			texts = append(texts, p.Document)
		}
		query := pairs[start].Query
		got, err := retry.Do(ctx, h.retry, func() ([]float64, error) {
			return h.call(ctx, query, texts)
		})
		if err != nil {
			return nil, err
		}
		copy(scores[start:end], got)
		start = end
	}
	return scores, nil
}

func (h *HTTPCrossEncoder) call(ctx context.Context, query string, texts []string) ([]float64, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"query":      query,
		"texts":      texts,
		"raw_scores": true,
		"truncate":   true,
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: api call: %v", ErrScoringFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("%w: api error %d: %s", ErrScoringFailed, resp.StatusCode, string(bodyBytes))
		if retry.RetryableStatus(resp.StatusCode) {
			return nil, apiErr
		}
		return nil, retry.Permanent(apiErr)
	}

	var apiResp []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrScoringFailed, err)
	}
	if len(apiResp) != len(texts) {
		return nil, retry.Permanent(fmt.Errorf("%w: got %d scores for %d texts", ErrScoringFailed, len(apiResp), len(texts)))
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, item := range apiResp {
		if item.Index < 0 || item.Index >= len(texts) || seen[item.Index] {
			return nil, retry.Permanent(fmt.Errorf("%w: bad result index %d", ErrScoringFailed, item.Index))
		}
		seen[item.Index] = true
		scores[item.Index] = item.Score
	}
	return scores, nil
}

// LexicalCrossEncoder scores pairs offline from surface features: how much
// of the query the document covers, how often query terms recur and how
// close together they appear. Stop words in the query are ignored.
// Features are combined linearly into a logit centred so that half
// coverage sits near zero.
type LexicalCrossEncoder struct {
	Bias            float64
	CoverageWeight  float64
	FrequencyWeight float64
	ProximityWeight float64
	HeadingBoost    float64
}

// NewLexicalCrossEncoder returns an encoder with default weights.
func NewLexicalCrossEncoder() *LexicalCrossEncoder {
	return &LexicalCrossEncoder{
		Bias:            -4,
		CoverageWeight:  7,
		FrequencyWeight: 1.5,
		ProximityWeight: 1.5,
		HeadingBoost:    1,
	}
}

func (l *LexicalCrossEncoder) Name() string { return EncoderLexical }

func (l *LexicalCrossEncoder) Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		scores[i] = l.logit(p)
	}
	return scores, nil
}

func (l *LexicalCrossEncoder) logit(p QueryDocPair) float64 {
	queryTerms := uniqueTerms(contentTerms(types.Tokenize(p.Query)))
	if len(queryTerms) == 0 {
		return l.Bias
	}
	heading, _, _ := strings.Cut(p.Document, "\n")
	docTerms := types.Tokenize(p.Document)
	headingTerms := types.Tokenize(heading)

	return l.Bias +
		l.CoverageWeight*coverage(queryTerms, docTerms) +
		l.FrequencyWeight*termFrequency(queryTerms, docTerms) +
		l.ProximityWeight*proximity(queryTerms, docTerms) +
		l.HeadingBoost*coverage(queryTerms, headingTerms)
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// coverage is the fraction of query terms present in doc.
func coverage(queryTerms, docTerms []string) float64 {
	present := make(map[string]struct{}, len(docTerms))
	for _, d := range docTerms {
		present[d] = struct{}{}
	}
	hits := 0
	for _, q := range queryTerms {
		if _, ok := present[q]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// termFrequency saturates at three occurrences per query term.
func termFrequency(queryTerms, docTerms []string) float64 {
	freq := make(map[string]int, len(docTerms))
	for _, d := range docTerms {
		freq[d]++
	}
	total := 0
	for _, q := range queryTerms {
		total += freq[q]
	}
	return math.Min(float64(total)/float64(len(queryTerms)*3), 1)
}

// proximity rewards the smallest span between two distinct query terms.
// Single term queries count as perfectly proximate when the term occurs.
func proximity(queryTerms, docTerms []string) float64 {
	wanted := make(map[string]struct{}, len(queryTerms))
	for _, q := range queryTerms {
		wanted[q] = struct{}{}
	}

	lastPos := make(map[string]int)
	minSpan := -1
	for i, d := range docTerms {
		if _, ok := wanted[d]; !ok {
			continue
		}
		for term, pos := range lastPos {
			if term == d {
				continue
			}
			if span := i - pos; minSpan < 0 || span < minSpan {
				minSpan = span
			}
		}
		lastPos[d] = i
	}

	if len(queryTerms) == 1 {
		if len(lastPos) == 1 {
			return 1
		}
		return 0
	}
	if minSpan < 0 {
		return 0
	}
	return 1 / (1 + float64(minSpan-1)/5)
}
