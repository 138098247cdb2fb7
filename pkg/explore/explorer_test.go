package explore

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
)

func TestDiversityScoreIdentity(t *testing.T) {
	st := state.ReasoningState{"approach": "analytical", "temperature": 0.7}
	assert.Equal(t, 0.0, DiversityScore(st, st))
}

func TestDiversityScoreSymmetric(t *testing.T) {
	a := state.ReasoningState{"approach": "analytical", "step": 1}
	b := state.ReasoningState{"approach": "creative", "step": 1}

	assert.Equal(t, DiversityScore(a, b), DiversityScore(b, a))
}

func TestDiversityScoreDisjoint(t *testing.T) {
	a := state.ReasoningState{"x": 1}
	b := state.ReasoningState{"y": 2}

	assert.Equal(t, 1.0, DiversityScore(a, b))
}

func TestDiversityScoreBounds(t *testing.T) {
	a := state.ReasoningState{"shared": "v", "onlyA": 1}
	b := state.ReasoningState{"shared": "v", "onlyB": 2}

	score := DiversityScore(a, b)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestMarkAndQueryFailedPaths(t *testing.T) {
	e := New(DefaultOptions())
	st := state.ReasoningState{"approach": "analytical"}

	assert.False(t, e.PathAttempted(st))
	e.MarkPathFailed(st)
	assert.True(t, e.PathAttempted(st))
	assert.Equal(t, 1, e.FailedCount())

	// Equivalent content hashes equal regardless of map identity
	assert.True(t, e.PathAttempted(state.ReasoningState{"approach": "analytical"}))
}

func TestGenerateAlternativeDiffersFromFailed(t *testing.T) {
	opts := DefaultOptions()
	e := New(opts)

	base := state.ReasoningState{"strategy": "analytical", "temperature": 0.7}
	e.MarkPathFailed(base)

	candidate, err := e.GenerateAlternative(base, nil)
	require.NoError(t, err)

	for _, failed := range []state.ReasoningState{base} {
		assert.GreaterOrEqual(t, DiversityScore(candidate.State, failed), opts.DiversityThreshold)
	}
}

func TestGenerateAlternativeDeterministic(t *testing.T) {
	base := state.ReasoningState{"strategy": "analytical", "temperature": 0.7}

	first, err := New(DefaultOptions()).GenerateAlternative(base, nil)
	require.NoError(t, err)
	second, err := New(DefaultOptions()).GenerateAlternative(base, nil)
	require.NoError(t, err)

	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.Strategy, second.Strategy)
}

func TestGenerateAlternativesRoundRobin(t *testing.T) {
	e := New(DefaultOptions())
	base := state.ReasoningState{"strategy": "analytical", "temperature": 0.7}
	history := []interface{}{
		map[string]interface{}{"strategy": "seed", "step": 0},
	}

	candidates, err := e.GenerateAlternatives(base, history, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	strategies := map[VariationStrategy]bool{}
	for _, c := range candidates {
		strategies[c.Strategy] = true
	}
	assert.True(t, strategies[ParameterAdjustment])
	assert.True(t, strategies[StrategyChange])
	assert.True(t, strategies[BacktrackToEarlier])
}

func TestBacktrackSkipsNonMapAncestors(t *testing.T) {
	e := New(DefaultOptions())
	base := state.ReasoningState{"strategy": "analytical"}
	history := []interface{}{
		map[string]interface{}{"step": 0, "strategy": "seed"},
		"not a map",
		42,
	}

	candidates, err := e.GenerateAlternatives(base, history, 3)
	require.NoError(t, err)

	var backtracked *Candidate
	for i := range candidates {
		if candidates[i].Strategy == BacktrackToEarlier {
			backtracked = &candidates[i]
		}
	}
	require.NotNil(t, backtracked)
	assert.Equal(t, 0, backtracked.State["anchored_step"])
	assert.Equal(t, "seed", backtracked.State["strategy"])
}

func TestExhaustedAlternatives(t *testing.T) {
	opts := DefaultOptions()
	opts.DiversityThreshold = 0.99 // effectively impossible to satisfy
	e := New(opts)

	base := state.ReasoningState{"strategy": "analytical", "temperature": 0.7}
	e.MarkPathFailed(base)
	// Fail enough near neighbors that every variation lands too close
	for _, s := range []string{"creative", "systematic", "intuitive"} {
		near := state.ReasoningState{"strategy": s, "temperature": 0.7}
		e.MarkPathFailed(near)
	}

	_, err := e.GenerateAlternative(base, nil)
	require.Error(t, err)

	var e2 *errors.Error
	require.True(t, goerrors.As(err, &e2))
	assert.Equal(t, errors.ExhaustedAlternatives, e2.Code())
}

func TestBeamSearchDeterministicOrder(t *testing.T) {
	base := state.ReasoningState{"strategy": "analytical", "temperature": 0.7}

	first, err := New(DefaultOptions()).BeamSearch(base, 3)
	require.NoError(t, err)
	second, err := New(DefaultOptions()).BeamSearch(base, 3)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].State, second[i].State)
	}
}

func TestBeamSearchHonorsDiversity(t *testing.T) {
	opts := DefaultOptions()
	e := New(opts)
	base := state.ReasoningState{"strategy": "analytical", "temperature": 0.7}

	beam, err := e.BeamSearch(base, 3)
	require.NoError(t, err)
	require.NotEmpty(t, beam)

	for i := 0; i < len(beam); i++ {
		for j := i + 1; j < len(beam); j++ {
			assert.GreaterOrEqual(t,
				DiversityScore(beam[i].State, beam[j].State),
				opts.DiversityThreshold)
		}
	}
}
