package correction

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
)

// sequenceGenerator returns canned values one per call.
func sequenceGenerator(values ...string) GenerateFn {
	i := 0
	return func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		if i >= len(values) {
			i = len(values) - 1
		}
		v := values[i]
		i++
		return map[string]interface{}{"value": v}, nil
	}
}

func TestSimpleConvergence(t *testing.T) {
	cfg := Config{
		MaxIterations:    3,
		QualityThreshold: 0.9,
		Expected:         "360",
	}

	res, err := IterativeExecute(context.Background(), sequenceGenerator("350", "360"), nil, cfg)

	require.NoError(t, err)
	assert.Equal(t, Success, res.Status)
	assert.Equal(t, "360", res.Output["value"])
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, Match, res.Divergence)
}

func TestPartialSuccessOnExhaustedIterations(t *testing.T) {
	// Three tokens shared of five distinct: similarity 0.6 to expected
	cfg := Config{
		MaxIterations:    2,
		QualityThreshold: 0.9,
		Expected:         "alpha beta gamma delta",
	}
	generate := sequenceGenerator("alpha beta gamma x", "alpha beta gamma x")

	res, err := IterativeExecute(context.Background(), generate, nil, cfg)

	require.NoError(t, err)
	assert.Equal(t, PartialSuccess, res.Status)
	assert.True(t, res.Partial)
	assert.Equal(t, "alpha beta gamma x", res.Output["value"])
	assert.Equal(t, 2, res.Iterations)
}

func TestTerminatesWithinMaxIterations(t *testing.T) {
	calls := 0
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		calls++
		return map[string]interface{}{"value": "never right"}, nil
	}

	cfg := Config{MaxIterations: 4, QualityThreshold: 0.99, Expected: "target"}
	res, err := IterativeExecute(context.Background(), generate, nil, cfg)

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, PartialSuccess, res.Status)
}

func TestValidatorHardErrorAbortsImmediately(t *testing.T) {
	calls := 0
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		calls++
		return map[string]interface{}{"value": "x"}, nil
	}

	cfg := Config{
		MaxIterations: 5,
		Expected:      "x",
		Validator: func(expected, actual interface{}) (DivergenceLevel, error) {
			return Critical, fmt.Errorf("validator exploded")
		},
	}

	res, err := IterativeExecute(context.Background(), generate, nil, cfg)

	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, 1, calls) // no further retries
}

func TestCustomValidatorOverride(t *testing.T) {
	cfg := Config{
		MaxIterations:    2,
		QualityThreshold: 0.9,
		Expected:         "anything",
		Validator: func(expected, actual interface{}) (DivergenceLevel, error) {
			return Match, nil
		},
	}
	// Validator says Match but quality still governs termination; with a
	// perfect match absent, the loop exhausts and resolves partial
	generate := sequenceGenerator("unrelated output")

	res, err := IterativeExecute(context.Background(), generate, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, PartialSuccess, res.Status)
	assert.Equal(t, Match, res.Divergence)
}

func TestAllAttemptsFailed(t *testing.T) {
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		return nil, fmt.Errorf("model unavailable")
	}

	cfg := Config{MaxIterations: 2, Expected: "x"}
	res, err := IterativeExecute(context.Background(), generate, nil, cfg)

	require.Error(t, err)
	assert.Equal(t, errors.GenerationFailed, errors.Code(err))
	assert.Equal(t, Exhausted, res.Status)
}

func TestTimeoutTreatedAsRetryableDivergence(t *testing.T) {
	calls := 0
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]interface{}{"value": "360"}, nil
	}

	cfg := Config{
		MaxIterations:    3,
		QualityThreshold: 0.9,
		Expected:         "360",
		CallTimeout:      10 * time.Millisecond,
	}

	res, err := IterativeExecute(context.Background(), generate, nil, cfg)

	require.NoError(t, err)
	assert.Equal(t, Success, res.Status)
	assert.Equal(t, 2, res.Iterations)
}

func TestContextCancellationHonored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	generate := sequenceGenerator("x")
	_, err := IterativeExecute(ctx, generate, nil, Config{Expected: "x"})

	require.Error(t, err)
	assert.Equal(t, errors.Canceled, errors.Code(err))
}

func TestOnCorrectionCallbackObserves(t *testing.T) {
	var observed []Strategy
	cfg := Config{
		MaxIterations:    3,
		QualityThreshold: 0.9,
		Expected:         "360",
		OnCorrection: func(iteration int, strategy Strategy, quality float64) {
			observed = append(observed, strategy)
		},
	}

	res, err := IterativeExecute(context.Background(), sequenceGenerator("350", "360"), nil, cfg)

	require.NoError(t, err)
	assert.Equal(t, Success, res.Status)
	require.Len(t, observed, 1)
	assert.Equal(t, BacktrackAlternative, observed[0])
}

func TestOnCorrectionPanicDoesNotAffectControlFlow(t *testing.T) {
	cfg := Config{
		MaxIterations:    3,
		QualityThreshold: 0.9,
		Expected:         "360",
		OnCorrection: func(iteration int, strategy Strategy, quality float64) {
			panic("observer bug")
		},
	}

	res, err := IterativeExecute(context.Background(), sequenceGenerator("350", "360"), nil, cfg)

	require.NoError(t, err)
	assert.Equal(t, Success, res.Status)
	assert.Equal(t, 2, res.Iterations)
}

func TestQualityScore(t *testing.T) {
	t.Run("exact match with default confidence", func(t *testing.T) {
		q := QualityScore(map[string]interface{}{"value": "360"}, "360")
		assert.InDelta(t, 0.9, q, 0.001)
	})

	t.Run("reported confidence raises score", func(t *testing.T) {
		q := QualityScore(map[string]interface{}{"value": "360", "confidence": 1.0}, "360")
		assert.InDelta(t, 1.0, q, 0.001)
	})

	t.Run("mismatch scores low", func(t *testing.T) {
		q := QualityScore(map[string]interface{}{"value": "wrong"}, "360")
		assert.Less(t, q, 0.2)
	})
}

func TestValidateOutcomeDefault(t *testing.T) {
	level, err := ValidateOutcome("360", "360", nil)
	require.NoError(t, err)
	assert.Equal(t, Match, level)

	level, err = ValidateOutcome("360", "350", nil)
	require.NoError(t, err)
	assert.Equal(t, Critical, level)
}

func TestValidateOutcomeCustomError(t *testing.T) {
	_, err := ValidateOutcome("a", "b", func(expected, actual interface{}) (DivergenceLevel, error) {
		return Critical, goerrors.New("broken")
	})
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
}
