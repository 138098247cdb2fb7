package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDivergence(t *testing.T) {
	cases := []struct {
		similarity float64
		want       DivergenceLevel
	}{
		{1.0, Match},
		{0.96, Match},
		{0.95, Minor}, // boundary: Match requires strictly greater
		{0.8, Minor},
		{0.79, Moderate},
		{0.5, Moderate},
		{0.49, Critical},
		{0.0, Critical},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyDivergence(tc.similarity),
			"similarity %.2f", tc.similarity)
	}
}

func TestSelectStrategy(t *testing.T) {
	const maxIter = 5

	t.Run("match needs no correction", func(t *testing.T) {
		assert.Equal(t, NoCorrection, SelectStrategy(Match, 0, maxIter, false, false))
	})

	t.Run("minor retries adjusted", func(t *testing.T) {
		assert.Equal(t, RetryAdjusted, SelectStrategy(Minor, 0, maxIter, false, false))
	})

	t.Run("moderate first occurrence retries", func(t *testing.T) {
		assert.Equal(t, RetryAdjusted, SelectStrategy(Moderate, 1, maxIter, false, false))
	})

	t.Run("moderate repeated backtracks", func(t *testing.T) {
		assert.Equal(t, BacktrackAlternative, SelectStrategy(Moderate, 1, maxIter, true, false))
	})

	t.Run("critical backtracks", func(t *testing.T) {
		assert.Equal(t, BacktrackAlternative, SelectStrategy(Critical, 0, maxIter, false, false))
	})

	t.Run("critical with ambiguity clarifies", func(t *testing.T) {
		assert.Equal(t, ClarifyRequirements, SelectStrategy(Critical, 0, maxIter, false, true))
	})

	t.Run("final iteration accepts partial at any level", func(t *testing.T) {
		assert.Equal(t, AcceptPartial, SelectStrategy(Minor, maxIter-1, maxIter, false, false))
		assert.Equal(t, AcceptPartial, SelectStrategy(Critical, maxIter-1, maxIter, true, true))
	})
}

func TestAdaptThreshold(t *testing.T) {
	assert.InDelta(t, 0.5, AdaptThreshold(0.7, LowCriticality), 0.001)
	assert.InDelta(t, 0.5, AdaptThreshold(0.55, LowCriticality), 0.001) // floor
	assert.InDelta(t, 0.9, AdaptThreshold(0.7, HighCriticality), 0.001)
	assert.InDelta(t, 0.95, AdaptThreshold(0.9, HighCriticality), 0.001) // ceiling
	assert.InDelta(t, 0.7, AdaptThreshold(0.7, MediumCriticality), 0.001)
}
