// Package engine composes the snapshot stack, dead-end detection, path
// exploration, and budget tracking into the top-level backtracking loop: run
// an attempt, validate the outcome, and either refine in place, branch to an
// alternative, or stop and surface the best result found.
package engine

import (
	"context"
	goerrors "errors"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/reflexion-go/pkg/budget"
	"github.com/XiaoConstantine/reflexion-go/pkg/config"
	"github.com/XiaoConstantine/reflexion-go/pkg/correction"
	"github.com/XiaoConstantine/reflexion-go/pkg/deadend"
	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/explore"
	"github.com/XiaoConstantine/reflexion-go/pkg/logging"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
	"github.com/XiaoConstantine/reflexion-go/pkg/treesearch"
	"github.com/XiaoConstantine/reflexion-go/pkg/utils"
)

// Status is the terminal status of a run. Callers must handle all three
// explicitly; treating PartialSuccess as Success hides degraded results.
type Status int

const (
	Success Status = iota
	PartialSuccess
	Failed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case PartialSuccess:
		return "partial_success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunResult is the terminal outcome of a backtracking run.
type RunResult struct {
	Status     Status
	Output     map[string]interface{}
	Quality    float64
	Attempts   int
	Backtracks int
	Reason     string
	FinalState state.ReasoningState
}

// Engine executes reasoning attempts with retry and backtrack semantics.
type Engine struct {
	cfg        *config.Config
	store      state.Store
	sessionKey string
	validator  correction.Validator
	onCorrect  correction.CorrectionCallback
	progressFn deadend.ProgressFn
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithStore enables snapshot-stack persistence across process restarts.
func WithStore(store state.Store, sessionKey string) Option {
	return func(e *Engine) {
		e.store = store
		e.sessionKey = sessionKey
	}
}

// WithValidator overrides similarity-based outcome validation.
func WithValidator(v correction.Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithCorrectionCallback observes each correction decision.
func WithCorrectionCallback(cb correction.CorrectionCallback) Option {
	return func(e *Engine) { e.onCorrect = cb }
}

// WithProgressFn supplies the metric for the stalled-progress heuristic.
func WithProgressFn(fn deadend.ProgressFn) Option {
	return func(e *Engine) { e.progressFn = fn }
}

// New creates an engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one backtracking reasoning attempt against the expectation.
// Every generation call costs one budget unit; when the budget runs out the
// best candidate seen resolves as PartialSuccess, and only a run that could
// afford zero attempts fails with InsufficientBudget.
func (e *Engine) Run(ctx context.Context, initial state.ReasoningState, expected interface{}, generate correction.GenerateFn) (RunResult, error) {
	logger := logging.GetLogger()
	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)

	bud := budget.New(e.cfg.Budget.Total, e.cfg.Budget.PriorityReserveFraction)
	explorer := explore.New(explore.Options{
		DiversityThreshold: e.cfg.Exploration.DiversityThreshold,
		ParameterStep:      e.cfg.Exploration.ParameterStep,
		Strategies:         e.cfg.Exploration.Strategies,
	})
	stack := state.NewStack()

	deadOpts := deadend.DefaultOptions()
	deadOpts.RepeatThreshold = e.cfg.DeadEnd.RepeatThreshold
	deadOpts.ConfidenceThreshold = e.cfg.DeadEnd.ConfidenceThreshold
	deadOpts.StallWindow = e.cfg.DeadEnd.StallWindow
	deadOpts.HistoryWindow = e.cfg.DeadEnd.HistoryWindow
	deadOpts.Progress = e.progressFn

	threshold := correction.AdaptThreshold(
		e.cfg.Correction.QualityThreshold,
		correction.ParseCriticality(e.cfg.Correction.Criticality),
	)
	maxIterations := e.cfg.Correction.MaxIterations

	current := utils.DeepCopyMap(initial)
	if current == nil {
		current = state.ReasoningState{}
	}

	var (
		history         []interface{}
		best            map[string]interface{}
		bestQuality     = -1.0
		attempts        int
		backtracks      int
		branchIteration int
		seenLevels      = map[correction.DivergenceLevel]int{}
	)

	logger.Info(ctx, "starting run: budget=%d threshold=%.2f", e.cfg.Budget.Total, threshold)

	for {
		// Cancellation is honored at the top of every iteration
		if err := errors.CheckContext(ctx, "backtracking run"); err != nil {
			return RunResult{Status: Failed, Attempts: attempts, Backtracks: backtracks, Reason: "canceled"}, err
		}
		if err := bud.Consume(1); err != nil {
			break
		}

		attempts++
		iterCtx := logging.WithIteration(ctx, attempts)

		result, err := e.invokeGenerate(iterCtx, generate, current)
		if err != nil {
			logger.Warn(iterCtx, "generation failed: %v", err)
			entry := map[string]interface{}{
				"error":             err.Error(),
				"failure_signature": errorSignature(err),
			}
			history = append(history, entry)
			seenLevels[correction.Critical]++

			// Repeated failure signatures feed dead-end detection; a single
			// failure retries in place
			if e.shouldBacktrack(entry, history, deadOpts, correction.RetryAdjusted) {
				current, backtracks, branchIteration = e.backtrack(iterCtx, current, history, stack, explorer, backtracks, seenLevels)
				continue
			}
			branchIteration++
			continue
		}

		level, verr := correction.ValidateOutcome(expected, outcomeValue(result), e.validator)
		if verr != nil {
			// Structural validator failure terminates the run immediately
			return RunResult{
				Status:     Failed,
				Attempts:   attempts,
				Backtracks: backtracks,
				Reason:     "validator failed",
				FinalState: current,
			}, verr
		}
		seenLevels[level]++
		history = append(history, result)

		quality := correction.QualityScore(result, expected)
		if quality > bestQuality {
			best = result
			bestQuality = quality
		}

		if quality >= threshold {
			e.persistStack(ctx, stack)
			logger.Info(iterCtx, "run converged: quality=%.3f attempts=%d backtracks=%d", quality, attempts, backtracks)
			return RunResult{
				Status:     Success,
				Output:     result,
				Quality:    quality,
				Attempts:   attempts,
				Backtracks: backtracks,
				Reason:     "quality threshold met",
				FinalState: current,
			}, nil
		}

		ambiguous, _ := result["ambiguous"].(bool)
		strategy := correction.SelectStrategy(level, branchIteration, maxIterations, seenLevels[level] > 1, ambiguous)
		notify(iterCtx, e.onCorrect, branchIteration, strategy, quality)
		logger.Debug(iterCtx, "divergence=%s quality=%.3f strategy=%s", level, quality, strategy)

		if strategy == correction.AcceptPartial {
			break
		}

		if e.shouldBacktrack(result, history, deadOpts, strategy) {
			current, backtracks, branchIteration = e.backtrack(iterCtx, current, history, stack, explorer, backtracks, seenLevels)
			continue
		}

		// Refine in place: perturb the sampling temperature around the base
		branchIteration++
		adjustTemperature(current, branchIteration)
	}

	e.persistStack(ctx, stack)

	res, err := bud.HandleExhaustion(bestAsInterface(best))
	if err != nil {
		return RunResult{
			Status:     Failed,
			Attempts:   attempts,
			Backtracks: backtracks,
			Reason:     "budget exhausted with no candidate",
			FinalState: current,
		}, err
	}

	logger.Info(ctx, "run out of budget: best quality=%.3f attempts=%d backtracks=%d", bestQuality, attempts, backtracks)
	return RunResult{
		Status:     PartialSuccess,
		Output:     res.Best.(map[string]interface{}),
		Quality:    bestQuality,
		Attempts:   attempts,
		Backtracks: backtracks,
		Reason:     "budget exhausted",
		FinalState: current,
	}, nil
}

// SearchTree runs tree-structured exploration wired to this engine's budget
// and search configuration.
func (e *Engine) SearchTree(ctx context.Context, rootThought string, thoughtFn treesearch.ThoughtFn, evalFn treesearch.EvaluationFn, solutionCheck treesearch.SolutionCheck) (treesearch.Result, error) {
	strategy, err := treesearch.ParseStrategy(e.cfg.Search.Strategy)
	if err != nil {
		return treesearch.Result{}, err
	}

	search, err := treesearch.New(thoughtFn, evalFn, treesearch.Config{
		Strategy:       strategy,
		BeamWidth:      e.cfg.Search.BeamWidth,
		MaxDepth:       e.cfg.Search.MaxDepth,
		PruneThreshold: e.cfg.Search.PruneThreshold,
		MaxConcurrency: e.cfg.Search.MaxConcurrency,
		CallTimeout:    e.cfg.Search.CallTimeout,
		SolutionCheck:  solutionCheck,
		Budget:         budget.New(e.cfg.Budget.Total, e.cfg.Budget.PriorityReserveFraction),
	})
	if err != nil {
		return treesearch.Result{}, err
	}

	ctx = logging.WithRunID(ctx, uuid.New().String())
	return search.Run(ctx, rootThought)
}

// shouldBacktrack decides whether to abandon the current path, combining the
// correction strategy with dead-end detection. The current entry is excluded
// from the history the detector compares against.
func (e *Engine) shouldBacktrack(result map[string]interface{}, history []interface{}, deadOpts deadend.Options, strategy correction.Strategy) bool {
	if strategy == correction.BacktrackAlternative || strategy == correction.ClarifyRequirements {
		return true
	}
	return deadend.DetectWithReasons(result, history[:len(history)-1], deadOpts).IsDeadEnd
}

// backtrack snapshots the abandoned path and re-anchors on a diverse
// alternative. When variation is exhausted it falls back to an earlier branch
// point from the stack; with none left, the current state is kept and the
// budget drains through remaining retries.
func (e *Engine) backtrack(ctx context.Context, current state.ReasoningState, history []interface{}, stack *state.Stack, explorer *explore.Explorer, backtracks int, seenLevels map[correction.DivergenceLevel]int) (state.ReasoningState, int, int) {
	logger := logging.GetLogger()

	explorer.MarkPathFailed(current)
	stack.Push(state.Capture(current, map[string]interface{}{"reason": "backtrack"}))

	alt, err := explorer.GenerateAlternative(current, history)
	if err == nil {
		logger.Debug(ctx, "backtracking via %s", alt.Strategy)
		clearLevels(seenLevels)
		return alt.State, backtracks + 1, 0
	}

	if snap, perr := stack.Pop(); perr == nil {
		logger.Debug(ctx, "variation exhausted, restoring snapshot %s", snap.ID)
		clearLevels(seenLevels)
		return snap.Restore(), backtracks + 1, 0
	}

	logger.Warn(ctx, "no alternative available, continuing current path: %v", err)
	return current, backtracks, 0
}

func (e *Engine) invokeGenerate(ctx context.Context, generate correction.GenerateFn, current state.ReasoningState) (map[string]interface{}, error) {
	callCtx := ctx
	if e.cfg.Correction.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.Correction.CallTimeout)
		defer cancel()
	}

	result, err := generate(callCtx, current, map[string]interface{}{})
	if err != nil {
		if goerrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(err, errors.Timeout, "generation call timed out")
		}
		return nil, errors.Wrap(err, errors.GenerationFailed, "generation call failed")
	}
	return result, nil
}

func (e *Engine) persistStack(ctx context.Context, stack *state.Stack) {
	if e.store == nil || e.sessionKey == "" {
		return
	}
	if err := stack.Persist(ctx, e.store, e.sessionKey); err != nil {
		logging.GetLogger().Error(ctx, "failed to persist snapshot stack: %v", err)
	}
}

// notify invokes the observability callback, insulating the loop from panics
// it may raise.
func notify(ctx context.Context, cb correction.CorrectionCallback, iteration int, strategy correction.Strategy, quality float64) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.GetLogger().Error(ctx, "correction callback panicked: %v", r)
		}
	}()
	cb(iteration, strategy, quality)
}

// adjustTemperature perturbs the sampling temperature for an in-place retry,
// alternating direction so retries sweep both sides of the base.
func adjustTemperature(st state.ReasoningState, iteration int) {
	temp := 0.7
	if v, ok := st["temperature"].(float64); ok {
		temp = v
	}
	step := 0.15
	if iteration%2 == 1 {
		step = -step
	}
	temp += step
	if temp < 0.1 {
		temp = 0.1
	}
	if temp > 1.0 {
		temp = 1.0
	}
	st["temperature"] = temp
}

// errorSignature buckets generation errors so repeated-failure detection can
// count them.
func errorSignature(err error) string {
	switch errors.Code(err) {
	case errors.Timeout:
		return "timeout"
	case errors.GenerationFailed:
		return "generation_failed"
	default:
		return "unknown_error"
	}
}

// outcomeValue extracts the comparable outcome from a result map. Results
// carrying an explicit "value" compare through it; otherwise the whole map is
// the outcome.
func outcomeValue(result map[string]interface{}) interface{} {
	if result == nil {
		return nil
	}
	if v, ok := result["value"]; ok {
		return v
	}
	return result
}

func bestAsInterface(best map[string]interface{}) interface{} {
	if best == nil {
		return nil
	}
	return best
}

func clearLevels(levels map[correction.DivergenceLevel]int) {
	for k := range levels {
		delete(levels, k)
	}
}
