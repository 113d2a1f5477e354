package reranker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/dshills/faqgate/pkg/types"
)

// Common errors
var (
	ErrScoringFailed = fmt.Errorf("%w: cross-encoder scoring failed", types.ErrProviderFailure)
	ErrNoEncoder     = fmt.Errorf("%w: no cross-encoder configured", types.ErrValidation)
)

// DefaultBatchSize bounds how many pairs go to the encoder per call.
const DefaultBatchSize = 32

// QueryDocPair is one (query, document) input to a cross-encoder.
type QueryDocPair struct {
	Query    string
	Document string
}

// CrossEncoder scores query/document pairs jointly. Scores are raw logits,
// one per pair, in input order.
type CrossEncoder interface {
	Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error)
	Name() string
}

// Reranker re-scores first-stage candidates with a cross-encoder and maps
// the logits onto [0,1] with the logistic sigmoid.
type Reranker struct {
	encoder   CrossEncoder
	batchSize int
	logger    *zap.Logger
}

// New creates a Reranker. A zero batchSize uses DefaultBatchSize.
func New(encoder CrossEncoder, batchSize int, logger *zap.Logger) (*Reranker, error) {
	if encoder == nil {
		return nil, ErrNoEncoder
	}
	if batchSize < 0 {
		return nil, fmt.Errorf("%w: batch size must not be negative (got %d)", types.ErrValidation, batchSize)
	}
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		encoder:   encoder,
		batchSize: batchSize,
		logger:    logger.With(zap.String("component", "reranker"), zap.String("encoder", encoder.Name())),
	}, nil
}

// Rerank scores every candidate against query and returns the best k,
// sorted by descending probability. Ties keep candidate order. Documents
// are presented to the encoder as heading + "\n" + content.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []types.SearchResult, k int) ([]types.SearchResult, error) {
	if len(candidates) == 0 || k <= 0 {
		return []types.SearchResult{}, nil
	}

	pairs := make([]QueryDocPair, len(candidates))
	for i, c := range candidates {
		pairs[i] = QueryDocPair{Query: query, Document: c.Chunk.EmbedText()}
	}

	logits, err := r.batchScore(ctx, pairs)
	if err != nil {
		return nil, err
	}

	reranked := make([]types.SearchResult, len(candidates))
	for i, c := range candidates {
		reranked[i] = types.SearchResult{Chunk: c.Chunk, Score: Sigmoid(logits[i])}
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	out := types.Truncate(reranked, k)
	r.logger.Debug("reranked candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(out)),
		zap.Float64("top_score", out[0].Score))
	return out, nil
}

func (r *Reranker) batchScore(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	scores := make([]float64, len(pairs))

	for i := 0; i < len(pairs); i += r.batchSize {
		end := min(i+r.batchSize, len(pairs))

		batchScores, err := r.encoder.Score(ctx, pairs[i:end])
		if err != nil {
			if errors.Is(err, types.ErrProviderFailure) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrScoringFailed, err)
		}
		if len(batchScores) != end-i {
			return nil, fmt.Errorf("%w: got %d scores for %d pairs", ErrScoringFailed, len(batchScores), end-i)
		}
		for j, s := range batchScores {
			if math.IsNaN(s) {
				return nil, fmt.Errorf("%w: NaN score for pair %d", ErrScoringFailed, i+j)
			}
		}

		copy(scores[i:end], batchScores)
	}

	return scores, nil
}

// Sigmoid is the logistic function 1/(1+e^-x), evaluated without overflow
// for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
