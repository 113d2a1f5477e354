package confidence

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/dshills/faqgate/pkg/types"
)

// Reasons reported by Check.
const (
	ReasonNoResults    = "no results found"
	ReasonSingleResult = "single result above threshold"
	ReasonBothMet      = "both thresholds met"
)

// Policy names accepted by ParsePolicy.
const (
	PolicyRatio = "ratio"
	PolicyGap   = "gap"
)

// Decision is the outcome of gating one ranked result list. Score fields
// are nil when too few results exist to compute them.
type Decision struct {
	ShouldAnswer bool     `json:"should_answer"`
	Reason       string   `json:"reason"`
	TopScore     *float64 `json:"top_score,omitempty"`
	SecondScore  *float64 `json:"second_score,omitempty"`
	Gap          *float64 `json:"gap,omitempty"`
	Ratio        *float64 `json:"ratio,omitempty"`
}

// MarshalJSON omits an infinite ratio, which JSON cannot represent.
func (d Decision) MarshalJSON() ([]byte, error) {
	type plain Decision
	out := plain(d)
	if out.Ratio != nil && (math.IsInf(*out.Ratio, 0) || math.IsNaN(*out.Ratio)) {
		out.Ratio = nil
	}
	return json.Marshal(out)
}

// Policy decides whether the separation between the top two scores is
// large enough. The absolute floor is applied by Check before the policy
// is consulted.
type Policy interface {
	// Floor is the minimum acceptable top score.
	Floor() float64
	// Separated reports whether top stands clear of second, and the reason
	// when it does not.
	Separated(top, second, gap, ratio float64) (bool, string)
	Name() string
}

// RatioPolicy requires top/second >= MinRatio. The ratio is scale
// invariant, so it behaves the same for cosine, RRF and sigmoid scores.
type RatioPolicy struct {
	MinSimilarity float64
	MinRatio      float64
}

func (p RatioPolicy) Floor() float64 { return p.MinSimilarity }
func (p RatioPolicy) Name() string   { return PolicyRatio }

func (p RatioPolicy) Separated(_, _, _, ratio float64) (bool, string) {
	if ratio < p.MinRatio {
		return false, fmt.Sprintf("ratio %.3f below threshold %s (uncertain match)", ratio, fmtThreshold(p.MinRatio))
	}
	return true, ""
}

// GapPolicy requires top-second >= MinGap. Kept for deployments tuned
// against the older subtractive rule.
type GapPolicy struct {
	MinSimilarity float64
	MinGap        float64
}

func (p GapPolicy) Floor() float64 { return p.MinSimilarity }
func (p GapPolicy) Name() string   { return PolicyGap }

func (p GapPolicy) Separated(_, _, gap, _ float64) (bool, string) {
	if gap < p.MinGap {
		return false, fmt.Sprintf("gap %.3f below threshold %s (uncertain match)", gap, fmtThreshold(p.MinGap))
	}
	return true, ""
}

// Check gates results, which must be sorted by descending score.
//
//  1. no results: reject
//  2. top score below the policy floor: reject, nothing else computed
//  3. exactly one result: accept
//  4. otherwise compute gap and ratio and let the policy decide
//
// A non-positive second score yields an infinite ratio.
func Check(results []types.SearchResult, policy Policy) Decision {
	if len(results) == 0 {
		return Decision{ShouldAnswer: false, Reason: ReasonNoResults}
	}

	top := results[0].Score
	if top < policy.Floor() {
		return Decision{
			ShouldAnswer: false,
			Reason:       fmt.Sprintf("top score %.3f below threshold %s", top, fmtThreshold(policy.Floor())),
			TopScore:     ptr(top),
		}
	}

	if len(results) == 1 {
		return Decision{ShouldAnswer: true, Reason: ReasonSingleResult, TopScore: ptr(top)}
	}

	second := results[1].Score
	gap := top - second
	ratio := math.Inf(1)
	if second > 0 {
		ratio = top / second
	}

	d := Decision{
		ShouldAnswer: true,
		Reason:       ReasonBothMet,
		TopScore:     ptr(top),
		SecondScore:  ptr(second),
		Gap:          ptr(gap),
		Ratio:        ptr(ratio),
	}
	if ok, reason := policy.Separated(top, second, gap, ratio); !ok {
		d.ShouldAnswer = false
		d.Reason = reason
	}
	return d
}

// CheckRatio gates with the ratio policy.
func CheckRatio(results []types.SearchResult, minSimilarity, minRatio float64) Decision {
	return Check(results, RatioPolicy{MinSimilarity: minSimilarity, MinRatio: minRatio})
}

// CheckGap gates with the legacy gap policy.
func CheckGap(results []types.SearchResult, minSimilarity, minGap float64) Decision {
	return Check(results, GapPolicy{MinSimilarity: minSimilarity, MinGap: minGap})
}

// Filter keeps results scoring at least minSimilarity, preserving order.
func Filter(results []types.SearchResult, minSimilarity float64) []types.SearchResult {
	out := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minSimilarity {
			out = append(out, r)
		}
	}
	return out
}

// ParsePolicy maps a configured policy name to a Policy.
func ParsePolicy(name string, minSimilarity, minRatio, minGap float64) (Policy, error) {
	switch name {
	case "", PolicyRatio:
		return RatioPolicy{MinSimilarity: minSimilarity, MinRatio: minRatio}, nil
	case PolicyGap:
		return GapPolicy{MinSimilarity: minSimilarity, MinGap: minGap}, nil
	default:
		return nil, fmt.Errorf("%w: unknown confidence policy %q", types.ErrValidation, name)
	}
}

func ptr(v float64) *float64 { return &v }

func fmtThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
