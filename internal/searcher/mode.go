package searcher

import (
	"fmt"
	"strings"

	"github.com/dshills/faqgate/pkg/types"
)

// Mode selects the retrieval path. It is a closed set: Semantic, Hybrid,
// or Reranked wrapping one of the other two.
type Mode interface {
	String() string
	isMode()
}

// Semantic ranks by dense inner product only.
type Semantic struct{}

// Hybrid fuses dense and keyword rankings with RRF.
type Hybrid struct{}

// Reranked runs Base as a first stage and re-scores its candidates with a
// cross-encoder.
type Reranked struct {
	Base Mode
}

func (Semantic) isMode() {}
func (Hybrid) isMode()   {}
func (Reranked) isMode() {}

func (Semantic) String() string { return "semantic" }
func (Hybrid) String() string   { return "hybrid" }
func (r Reranked) String() string {
	return "reranked(" + r.base().String() + ")"
}

func (r Reranked) base() Mode {
	if _, ok := r.Base.(Hybrid); ok {
		return Hybrid{}
	}
	return Semantic{}
}

// ModeFromFlags resolves configuration flags. Reranking takes precedence
// over hybrid, hybrid over semantic; a reranked mode keeps hybrid as its
// first stage when both flags are set.
func ModeFromFlags(hybrid, rerank bool) Mode {
	var base Mode = Semantic{}
	if hybrid {
		base = Hybrid{}
	}
	if rerank {
		return Reranked{Base: base}
	}
	return base
}

// ParseMode accepts the names produced by String plus the bare "reranked"
// shorthand for a semantic first stage.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "semantic", "vector":
		return Semantic{}, nil
	case "hybrid":
		return Hybrid{}, nil
	case "reranked", "reranked(semantic)":
		return Reranked{Base: Semantic{}}, nil
	case "reranked(hybrid)":
		return Reranked{Base: Hybrid{}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown retrieval mode %q", types.ErrValidation, name)
	}
}

// ModeThreshold is the gate configuration for one mode. MinGap is only
// read by the legacy gap policy.
type ModeThreshold struct {
	MinSimilarity float64
	MinRatio      float64
	MinGap        float64
}

func (m ModeThreshold) validate(name string) []string {
	var bad []string
	if m.MinSimilarity < 0 || m.MinSimilarity > 1 {
		bad = append(bad, fmt.Sprintf("%s min_similarity must be between 0 and 1 (got %g)", name, m.MinSimilarity))
	}
	if m.MinRatio < 1 {
		bad = append(bad, fmt.Sprintf("%s min_ratio must be at least 1 (got %g)", name, m.MinRatio))
	}
	if m.MinGap < 0 || m.MinGap > 1 {
		bad = append(bad, fmt.Sprintf("%s min_gap must be between 0 and 1 (got %g)", name, m.MinGap))
	}
	return bad
}

// Thresholds holds per-mode gate settings. Score distributions differ by
// mode: cosine similarities spread widely, RRF scores cluster tightly and
// sigmoid probabilities sit in between, so each needs its own ratio and
// gap.
type Thresholds struct {
	Semantic ModeThreshold
	Hybrid   ModeThreshold
	Reranked ModeThreshold
}

// DefaultThresholds returns the tuned defaults. The hybrid similarity
// floor is zero because RRF scores never exceed 2/k, and the hybrid gap is
// sized to that scale: a chunk first in both lists leads a chunk second in
// one of them by about 0.017.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Semantic: ModeThreshold{MinSimilarity: 0.70, MinRatio: 1.10, MinGap: 0.15},
		Hybrid:   ModeThreshold{MinSimilarity: 0.0, MinRatio: 1.02, MinGap: 0.005},
		Reranked: ModeThreshold{MinSimilarity: 0.70, MinRatio: 1.05, MinGap: 0.10},
	}
}

// Validate checks every mode's thresholds. Errors wrap types.ErrValidation.
func (t Thresholds) Validate() error {
	var bad []string
	bad = append(bad, t.Semantic.validate("semantic")...)
	bad = append(bad, t.Hybrid.validate("hybrid")...)
	bad = append(bad, t.Reranked.validate("reranked")...)
	if len(bad) > 0 {
		return fmt.Errorf("%w: %s", types.ErrValidation, strings.Join(bad, "; "))
	}
	return nil
}

// For returns the thresholds of mode.
func (t Thresholds) For(mode Mode) ModeThreshold {
	switch mode.(type) {
	case Reranked:
		return t.Reranked
	case Hybrid:
		return t.Hybrid
	default:
		return t.Semantic
	}
}
