package confidence

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/faqgate/pkg/types"
)

func scored(scores ...float64) []types.SearchResult {
	out := make([]types.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = types.SearchResult{Chunk: types.Chunk{ID: string(rune('a' + i)), Content: "x"}, Score: s}
	}
	return out
}

func TestCheckRatio(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float64
		minSim     float64
		minRatio   float64
		wantAnswer bool
		wantReason string
	}{
		{name: "no results", scores: nil, minSim: 0.7, minRatio: 1.05, wantAnswer: false, wantReason: "no results"},
		{name: "below floor", scores: []float64{0.65, 0.2}, minSim: 0.7, minRatio: 1.05, wantAnswer: false, wantReason: "top score 0.650 below threshold 0.7"},
		{name: "single result below floor", scores: []float64{0.65}, minSim: 0.70, minRatio: 1.05, wantAnswer: false, wantReason: "top score 0.650 below threshold 0.7"},
		{name: "single result above floor", scores: []float64{0.85}, minSim: 0.70, minRatio: 1.05, wantAnswer: true, wantReason: ReasonSingleResult},
		{name: "single result", scores: []float64{0.8}, minSim: 0.7, minRatio: 1.05, wantAnswer: true, wantReason: ReasonSingleResult},
		{name: "ratio just above", scores: []float64{1.0, 0.95}, minSim: 0.7, minRatio: 1.05, wantAnswer: true, wantReason: ReasonBothMet},
		{name: "ratio below", scores: []float64{1.0, 0.99}, minSim: 0.7, minRatio: 1.05, wantAnswer: false, wantReason: "(uncertain match)"},
		{name: "zero second score", scores: []float64{0.85, 0.0}, minSim: 0.7, minRatio: 1.05, wantAnswer: true, wantReason: ReasonBothMet},
		{name: "floor equal passes", scores: []float64{0.7}, minSim: 0.7, minRatio: 1.05, wantAnswer: true, wantReason: ReasonSingleResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CheckRatio(scored(tt.scores...), tt.minSim, tt.minRatio)
			assert.Equal(t, tt.wantAnswer, d.ShouldAnswer)
			assert.Contains(t, d.Reason, tt.wantReason)
		})
	}
}

func TestCheckRatioFields(t *testing.T) {
	t.Run("no results has no scores", func(t *testing.T) {
		d := CheckRatio(nil, 0.7, 1.05)
		assert.Nil(t, d.TopScore)
		assert.Nil(t, d.SecondScore)
		assert.Nil(t, d.Gap)
		assert.Nil(t, d.Ratio)
	})

	t.Run("floor miss skips ratio", func(t *testing.T) {
		d := CheckRatio(scored(0.5, 0.4), 0.7, 1.05)
		require.NotNil(t, d.TopScore)
		assert.Equal(t, 0.5, *d.TopScore)
		assert.Nil(t, d.SecondScore)
		assert.Nil(t, d.Ratio)
	})

	t.Run("single result has only top", func(t *testing.T) {
		d := CheckRatio(scored(0.9), 0.7, 1.05)
		require.NotNil(t, d.TopScore)
		assert.Nil(t, d.SecondScore)
		assert.Nil(t, d.Gap)
	})

	t.Run("rejection keeps diagnostics", func(t *testing.T) {
		d := CheckRatio(scored(1.0, 0.99), 0.7, 1.05)
		require.NotNil(t, d.Ratio)
		require.NotNil(t, d.Gap)
		assert.InDelta(t, 1.0101, *d.Ratio, 1e-4)
		assert.InDelta(t, 0.01, *d.Gap, 1e-9)
		assert.Equal(t, "ratio 1.010 below threshold 1.05 (uncertain match)", d.Reason)
	})

	t.Run("zero second gives infinite ratio", func(t *testing.T) {
		d := CheckRatio(scored(0.85, 0.0), 0.7, 1.05)
		require.NotNil(t, d.Ratio)
		assert.True(t, math.IsInf(*d.Ratio, 1))
		assert.InDelta(t, 0.85, *d.Gap, 1e-12)
	})
}

func TestCheckGap(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float64
		wantAnswer bool
		wantReason string
	}{
		{name: "clear gap", scores: []float64{0.9, 0.6}, wantAnswer: true, wantReason: ReasonBothMet},
		{name: "narrow gap", scores: []float64{0.9, 0.8}, wantAnswer: false, wantReason: "gap 0.100 below threshold 0.15 (uncertain match)"},
		{name: "single", scores: []float64{0.75}, wantAnswer: true, wantReason: ReasonSingleResult},
		{name: "floor", scores: []float64{0.6}, wantAnswer: false, wantReason: "below threshold 0.7"},
		{name: "empty", wantAnswer: false, wantReason: ReasonNoResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CheckGap(scored(tt.scores...), 0.7, 0.15)
			assert.Equal(t, tt.wantAnswer, d.ShouldAnswer)
			assert.Contains(t, d.Reason, tt.wantReason)
		})
	}
}

func TestRatioIsScaleInvariant(t *testing.T) {
	base := CheckRatio(scored(0.9, 0.8), 0, 1.10)
	scaledDown := CheckRatio(scored(0.009, 0.008), 0, 1.10)
	assert.Equal(t, base.ShouldAnswer, scaledDown.ShouldAnswer)

	gapBase := CheckGap(scored(0.9, 0.7), 0, 0.15)
	gapScaled := CheckGap(scored(0.009, 0.007), 0, 0.15)
	assert.NotEqual(t, gapBase.ShouldAnswer, gapScaled.ShouldAnswer)
}

func TestFilter(t *testing.T) {
	got := Filter(scored(0.9, 0.7, 0.69, 0.1), 0.7)
	require.Len(t, got, 2)
	assert.Equal(t, 0.9, got[0].Score)
	assert.Equal(t, 0.7, got[1].Score)
	assert.Empty(t, Filter(nil, 0.5))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", 0.7, 1.05, 0.15)
	require.NoError(t, err)
	assert.Equal(t, PolicyRatio, p.Name())

	p, err = ParsePolicy("gap", 0.7, 1.05, 0.15)
	require.NoError(t, err)
	assert.Equal(t, GapPolicy{MinSimilarity: 0.7, MinGap: 0.15}, p)

	_, err = ParsePolicy("vibes", 0.7, 1.05, 0.15)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestDecisionJSONDropsInfiniteRatio(t *testing.T) {
	d := Check(scored(0.9, 0), RatioPolicy{MinSimilarity: 0.7, MinRatio: 1.1})
	require.NotNil(t, d.Ratio)
	require.True(t, math.IsInf(*d.Ratio, 1))

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ratio")
	assert.Contains(t, string(data), `"should_answer":true`)
	assert.Contains(t, string(data), `"second_score":0`)
}
