package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/confidence"
	"github.com/dshills/faqgate/internal/embedder"
	"github.com/dshills/faqgate/internal/generator"
	"github.com/dshills/faqgate/internal/searcher"
	"github.com/dshills/faqgate/internal/status"
	"github.com/dshills/faqgate/internal/storage"
	"github.com/dshills/faqgate/pkg/types"
)

// Outcomes of one question. Only OutcomeAnswered carries an answer.
const (
	OutcomeAnswered         = "answered"
	OutcomeNoResults        = "no_results"
	OutcomeLowConfidence    = "low_confidence"
	OutcomeGenerationFailed = "generation_failed"
)

// Reasons reported when the pipeline itself declines to answer. Gate
// rejections carry the gate's own reason.
const (
	ReasonNoResults       = "No relevant FAQ content found"
	ReasonEmptyGeneration = "Failed to generate answer"
	StatusSectionHeader   = "Related Status Updates:"
)

// Recorder receives per-question measurements, typically metrics.
type Recorder interface {
	RecordRetrieval(mode string, cacheHit bool, elapsed time.Duration)
	RecordAnswer(mode, outcome string, statusShown int)
	RecordGeneration(provider string, elapsed time.Duration, err error)
}

// Config holds the gate and status correlation settings
type Config struct {
	Thresholds searcher.Thresholds
	Policy     string // confidence.PolicyRatio (default) or confidence.PolicyGap

	StatusTopK          int
	StatusMinSimilarity float64
	StatusMaxShown      int
	StatusMaxChars      int
}

// DefaultConfig returns the tuned defaults
func DefaultConfig() Config {
	return Config{
		Thresholds:          searcher.DefaultThresholds(),
		Policy:              confidence.PolicyRatio,
		StatusTopK:          status.DefaultTopK,
		StatusMinSimilarity: status.DefaultMinSimilarity,
		StatusMaxShown:      2,
		StatusMaxChars:      200,
	}
}

// Deps are the collaborators of a Pipeline. Status, Storage and Recorder
// are optional.
type Deps struct {
	Searcher  *searcher.Searcher
	Generator generator.Generator
	Embedder  embedder.Embedder
	Status    *status.Cache
	Storage   storage.Storage
	Recorder  Recorder
	Logger    *zap.Logger
}

// Request is a question plus where it came from, for the interaction log.
type Request struct {
	Question  string
	Type      string // storage.InteractionAsk by default
	UserID    string
	ChannelID string
	ThreadTS  string
}

// AnswerResult is the outcome of one question. Results and Confidence are
// kept for every outcome past retrieval, and StatusUpdates is never nil.
type AnswerResult struct {
	Answered      bool                 `json:"answered"`
	Outcome       string               `json:"outcome"`
	Answer        string               `json:"answer,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	Mode          string               `json:"mode"`
	Results       []types.SearchResult `json:"results"`
	Confidence    *confidence.Decision `json:"confidence,omitempty"`
	StatusUpdates []status.Match       `json:"status_updates"`
	Generation    string               `json:"generation"`
	CacheHit      bool                 `json:"cache_hit"`
	Duration      time.Duration        `json:"duration"`
}

// Pipeline answers questions: retrieve, gate, generate, correlate status.
type Pipeline struct {
	searcher  *searcher.Searcher
	generator generator.Generator
	embedder  embedder.Embedder
	status    *status.Cache
	storage   storage.Storage
	recorder  Recorder
	cfg       Config
	logger    *zap.Logger
}

// New creates a Pipeline. Searcher and Generator are required; status
// correlation also needs Embedder.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Searcher == nil {
		return nil, fmt.Errorf("%w: searcher is required", types.ErrValidation)
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("%w: generator is required", types.ErrValidation)
	}
	if deps.Status != nil && deps.Embedder == nil {
		return nil, fmt.Errorf("%w: status correlation requires an embedder", types.ErrValidation)
	}
	if _, err := confidence.ParsePolicy(cfg.Policy, 0, 1, 0); err != nil {
		return nil, err
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.StatusMaxChars <= 0 {
		cfg.StatusMaxChars = 200
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Pipeline{
		searcher:  deps.Searcher,
		generator: deps.Generator,
		embedder:  deps.Embedder,
		status:    deps.Status,
		storage:   deps.Storage,
		recorder:  deps.Recorder,
		cfg:       cfg,
		logger:    deps.Logger.With(zap.String("component", "pipeline")),
	}, nil
}

// Answer answers a question. Validation and provider failures are returned
// as errors; every other outcome, including a gate rejection or a failed
// generation, is a result.
func (p *Pipeline) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	return p.Handle(ctx, Request{Question: question})
}

// Handle answers req and records it in the interaction log.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*AnswerResult, error) {
	startTime := time.Now()

	ret, err := p.searcher.Retrieve(ctx, req.Question)
	if err != nil {
		return nil, err
	}
	mode := ret.Mode.String()
	if p.recorder != nil {
		p.recorder.RecordRetrieval(mode, ret.CacheHit, ret.Duration)
	}

	res := &AnswerResult{
		Mode:       mode,
		Results:    ret.Results,
		Generation: ret.Generation,
		CacheHit:   ret.CacheHit,
	}

	policy, err := p.policy(ret.Mode)
	if err != nil {
		return nil, err
	}
	decision := confidence.Check(ret.Results, policy)
	res.Confidence = &decision

	switch {
	case len(ret.Results) == 0:
		res.Outcome = OutcomeNoResults
		res.Reason = ReasonNoResults
	case !decision.ShouldAnswer:
		res.Outcome = OutcomeLowConfidence
		res.Reason = decision.Reason
	default:
		p.generate(ctx, req.Question, res)
	}

	// Status updates are kept for every outcome but only appended to an answer.
	res.StatusUpdates = p.correlate(ctx, ret.QueryVector)
	if res.Answered {
		res.Answer += FormatStatusSection(res.StatusUpdates, p.cfg.StatusMaxChars)
	}

	res.Duration = time.Since(startTime)
	p.finish(ctx, req, res)
	return res, nil
}

func (p *Pipeline) policy(mode searcher.Mode) (confidence.Policy, error) {
	th := p.cfg.Thresholds.For(mode)
	return confidence.ParsePolicy(p.cfg.Policy, th.MinSimilarity, th.MinRatio, th.MinGap)
}

// generate fills in the answer or the generation failure.
func (p *Pipeline) generate(ctx context.Context, question string, res *AnswerResult) {
	genStart := time.Now()
	answer, err := p.generator.Generate(ctx, question, res.Results)
	if p.recorder != nil {
		p.recorder.RecordGeneration(p.generator.Name(), time.Since(genStart), err)
	}

	switch {
	case err != nil:
		res.Outcome = OutcomeGenerationFailed
		res.Reason = fmt.Sprintf("Error generating answer: %v", err)
		p.logger.Warn("answer generation failed", zap.String("generator", p.generator.Name()), zap.Error(err))
	case strings.TrimSpace(answer) == "":
		res.Outcome = OutcomeGenerationFailed
		res.Reason = ReasonEmptyGeneration
		p.logger.Warn("answer generation returned no text", zap.String("generator", p.generator.Name()))
	default:
		res.Answered = true
		res.Outcome = OutcomeAnswered
		res.Answer = answer
	}
}

// correlate finds status updates related to the query. A failure here is
// logged and treated as no matches; it never fails the question.
func (p *Pipeline) correlate(ctx context.Context, queryVec []float32) []status.Match {
	if p.status == nil || len(queryVec) == 0 || p.cfg.StatusMaxShown <= 0 {
		return []status.Match{}
	}

	matches, err := p.status.Search(ctx, queryVec, p.embedder, p.cfg.StatusTopK, p.cfg.StatusMinSimilarity)
	if err != nil {
		p.logger.Warn("status correlation failed", zap.Error(err))
		return []status.Match{}
	}
	if len(matches) > p.cfg.StatusMaxShown {
		matches = matches[:p.cfg.StatusMaxShown]
	}
	return matches
}

// finish logs, records metrics and writes the interaction log.
func (p *Pipeline) finish(ctx context.Context, req Request, res *AnswerResult) {
	fields := []zap.Field{
		zap.String("mode", res.Mode),
		zap.String("outcome", res.Outcome),
		zap.Int("results", len(res.Results)),
		zap.Int("status_updates", len(res.StatusUpdates)),
		zap.Duration("elapsed", res.Duration),
	}
	if res.Confidence != nil && res.Confidence.TopScore != nil {
		fields = append(fields, zap.Float64("top_score", *res.Confidence.TopScore))
	}
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	p.logger.Info("question handled", fields...)

	shown := 0
	if res.Answered {
		shown = len(res.StatusUpdates)
	}
	if p.recorder != nil {
		p.recorder.RecordAnswer(res.Mode, res.Outcome, shown)
	}

	if p.storage == nil {
		return
	}
	rec := &storage.Interaction{
		Type:               req.Type,
		UserID:             req.UserID,
		ChannelID:          req.ChannelID,
		ThreadTS:           req.ThreadTS,
		Question:           req.Question,
		Answered:           res.Answered,
		Outcome:            res.Outcome,
		Mode:               res.Mode,
		Reason:             res.Reason,
		Answer:             res.Answer,
		ChunkIDs:           chunkIDs(res.Results),
		StatusUpdatesShown: shown,
	}
	if rec.Type == "" {
		rec.Type = storage.InteractionAsk
	}
	if res.Confidence != nil {
		rec.ConfidenceScore = res.Confidence.TopScore
		rec.ConfidenceRatio = res.Confidence.Ratio
	}
	if err := p.storage.LogInteraction(ctx, rec); err != nil {
		p.logger.Warn("failed to log interaction", zap.Error(err))
	}
}

// FormatStatusSection renders matches as a markdown section to append to
// an answer. It returns "" when there are none.
func FormatStatusSection(matches []status.Match, maxChars int) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n*")
	b.WriteString(StatusSectionHeader)
	b.WriteString("*\n")
	for _, m := range matches {
		b.WriteString("• ")
		b.WriteString(types.TruncateRunes(m.Update.Text, maxChars))
		if m.Update.Link != "" {
			fmt.Fprintf(&b, " [View full message](%s)", m.Update.Link)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func chunkIDs(results []types.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}
