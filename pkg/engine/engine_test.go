package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/reflexion-go/pkg/config"
	"github.com/XiaoConstantine/reflexion-go/pkg/correction"
	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
	"github.com/XiaoConstantine/reflexion-go/pkg/treesearch"
)

func budgetConfig(total int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Budget.Total = total
	return cfg
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	eng := New()
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"value": "360", "confidence": 0.9}, nil
	}

	res, err := eng.Run(context.Background(), state.ReasoningState{"problem": "6*60"}, "360", generate)
	require.NoError(t, err)

	assert.Equal(t, Success, res.Status)
	assert.Equal(t, "360", res.Output["value"])
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 0, res.Backtracks)
	assert.InDelta(t, 0.98, res.Quality, 1e-9)
}

func TestRunRefinesInPlaceOnModerateDivergence(t *testing.T) {
	var corrections []correction.Strategy
	eng := New(WithCorrectionCallback(func(iteration int, strategy correction.Strategy, quality float64) {
		corrections = append(corrections, strategy)
	}))

	calls := 0
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		calls++
		if calls == 1 {
			return map[string]interface{}{"value": "the answer is 300"}, nil
		}
		return map[string]interface{}{"value": "the answer is 360"}, nil
	}

	res, err := eng.Run(context.Background(), nil, "the answer is 360", generate)
	require.NoError(t, err)

	assert.Equal(t, Success, res.Status)
	assert.Equal(t, 2, res.Attempts)
	// Moderate divergence on a fresh path retries in place, no backtrack
	assert.Equal(t, 0, res.Backtracks)
	require.Len(t, corrections, 1)
	assert.Equal(t, correction.RetryAdjusted, corrections[0])
}

func TestRunBacktracksOnCriticalDivergence(t *testing.T) {
	store := state.NewInMemoryStore()
	eng := New(WithStore(store, "session-1"))

	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		// The explorer stamps alternatives with a variation marker; answer
		// correctly only after the engine switched paths
		if _, backtracked := st["variation"]; backtracked {
			return map[string]interface{}{"value": "42"}, nil
		}
		return map[string]interface{}{"value": "banana"}, nil
	}

	res, err := eng.Run(context.Background(), state.ReasoningState{"problem": "meaning of life"}, "42", generate)
	require.NoError(t, err)

	assert.Equal(t, Success, res.Status)
	assert.Equal(t, "42", res.Output["value"])
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Backtracks)

	// The abandoned branch point was persisted for the session
	stack, err := state.LoadStack(context.Background(), store, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stack.Len())
}

func TestRunPartialSuccessWhenBudgetExhausted(t *testing.T) {
	// Total 5 with the default 20% reserve leaves 4 affordable attempts
	eng := New(WithConfig(budgetConfig(5)))

	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"value": "banana"}, nil
	}

	res, err := eng.Run(context.Background(), state.ReasoningState{"problem": "6*60"}, "42", generate)
	require.NoError(t, err)

	assert.Equal(t, PartialSuccess, res.Status)
	assert.Equal(t, "banana", res.Output["value"])
	assert.Equal(t, 4, res.Attempts)
	assert.Positive(t, res.Backtracks)
	assert.InDelta(t, 0.1, res.Quality, 1e-9)
}

func TestRunFailsWithZeroBudget(t *testing.T) {
	eng := New(WithConfig(budgetConfig(0)))

	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		t.Fatal("generate must not be called without budget")
		return nil, nil
	}

	res, err := eng.Run(context.Background(), nil, "42", generate)
	require.Error(t, err)

	assert.Equal(t, errors.InsufficientBudget, errors.Code(err))
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, 0, res.Attempts)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New()
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"value": "42"}, nil
	}

	res, err := eng.Run(ctx, nil, "42", generate)
	require.Error(t, err)

	assert.Equal(t, errors.Canceled, errors.Code(err))
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, "canceled", res.Reason)
}

func TestRunAbortsOnValidatorFailure(t *testing.T) {
	eng := New(WithValidator(func(expected, actual interface{}) (correction.DivergenceLevel, error) {
		return correction.Critical, fmt.Errorf("schema mismatch")
	}))

	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"value": "42"}, nil
	}

	res, err := eng.Run(context.Background(), nil, "42", generate)
	require.Error(t, err)

	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestRunRetriesAfterSingleGenerationError(t *testing.T) {
	eng := New()

	calls := 0
	generate := func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("transient upstream failure")
		}
		return map[string]interface{}{"value": "42"}, nil
	}

	res, err := eng.Run(context.Background(), nil, "42", generate)
	require.NoError(t, err)

	assert.Equal(t, Success, res.Status)
	assert.Equal(t, 2, res.Attempts)
	// One failure is not a dead end; the engine retried the same path
	assert.Equal(t, 0, res.Backtracks)
}

func TestSearchTreeFindsSolution(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.MaxDepth = 1
	eng := New(WithConfig(cfg))

	thoughtFn := func(ctx context.Context, nodeCtx treesearch.NodeContext, n int, opts map[string]interface{}) ([]string, error) {
		return []string{"a", "b", "c"}, nil
	}
	evalFn := func(ctx context.Context, thought string, nodeCtx treesearch.NodeContext, opts map[string]interface{}) (float64, error) {
		switch thought {
		case "b":
			return 0.9, nil
		default:
			return 0.4, nil
		}
	}
	solutionCheck := func(node *treesearch.Node) bool {
		return node.Evaluated && node.Value > 0.8
	}

	res, err := eng.SearchTree(context.Background(), "start", thoughtFn, evalFn, solutionCheck)
	require.NoError(t, err)

	require.NotNil(t, res.Solution)
	assert.Equal(t, "b", res.Solution.Thought)
	assert.Equal(t, treesearch.ReasonSolution, res.Reason)
	assert.Equal(t, 3, res.Explored)
}

func TestSearchTreeStopsAtMaxDepth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.MaxDepth = 1
	eng := New(WithConfig(cfg))

	thoughtFn := func(ctx context.Context, nodeCtx treesearch.NodeContext, n int, opts map[string]interface{}) ([]string, error) {
		return []string{"x", "y", "z"}, nil
	}
	evalFn := func(ctx context.Context, thought string, nodeCtx treesearch.NodeContext, opts map[string]interface{}) (float64, error) {
		return 0.5, nil
	}

	res, err := eng.SearchTree(context.Background(), "start", thoughtFn, evalFn, nil)
	require.NoError(t, err)

	assert.Nil(t, res.Solution)
	require.NotNil(t, res.Best)
	assert.Equal(t, treesearch.ReasonMaxDepth, res.Reason)
	assert.Equal(t, 3, res.Explored)
}

func TestSearchTreeRejectsUnknownStrategy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.Strategy = "dijkstra"
	eng := New(WithConfig(cfg))

	thoughtFn := func(ctx context.Context, nodeCtx treesearch.NodeContext, n int, opts map[string]interface{}) ([]string, error) {
		return nil, nil
	}
	evalFn := func(ctx context.Context, thought string, nodeCtx treesearch.NodeContext, opts map[string]interface{}) (float64, error) {
		return 0, nil
	}

	_, err := eng.SearchTree(context.Background(), "start", thoughtFn, evalFn, nil)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}
