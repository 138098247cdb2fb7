package correction

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/logging"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
	"github.com/XiaoConstantine/reflexion-go/pkg/utils"
)

const (
	// DefaultMaxIterations bounds the refinement loop.
	DefaultMaxIterations = 3

	// DefaultQualityThreshold is the acceptance bar for a result.
	DefaultQualityThreshold = 0.7

	// defaultConfidence substitutes for results that report none.
	defaultConfidence = 0.5
)

// GenerateFn produces a candidate result from the current reasoning state.
// The returned map may carry "value" (the outcome compared against the
// expectation), "confidence" in [0, 1], and "ambiguous" when the requirements
// themselves are unclear.
type GenerateFn func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error)

// Validator overrides the default similarity-based outcome validation. A
// returned error means the validator itself failed, which aborts the run.
type Validator func(expected, actual interface{}) (DivergenceLevel, error)

// CorrectionCallback observes each correction decision. Panics inside the
// callback are caught and logged; they never affect control flow.
type CorrectionCallback func(iteration int, strategy Strategy, quality float64)

// Status is the terminal state of the refinement loop.
type Status int

const (
	Running Status = iota
	Success
	PartialSuccess
	Exhausted
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Success:
		return "success"
	case PartialSuccess:
		return "partial_success"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config tunes the refinement loop.
type Config struct {
	MaxIterations    int
	QualityThreshold float64
	Criticality      Criticality

	// Expected is the outcome candidates are validated against.
	Expected interface{}

	// Validator optionally replaces the similarity-based validation.
	Validator Validator

	// OnCorrection observes each correction decision.
	OnCorrection CorrectionCallback

	// CallTimeout bounds each GenerateFn invocation. A timed-out call counts
	// as a Critical divergence, eligible for retry, not a fatal abort.
	CallTimeout time.Duration
}

// DefaultConfig returns loop defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    DefaultMaxIterations,
		QualityThreshold: DefaultQualityThreshold,
	}
}

// Result is the terminal outcome of IterativeExecute.
type Result struct {
	Status     Status
	Output     map[string]interface{}
	Quality    float64
	Divergence DivergenceLevel
	Iterations int
	Partial    bool
}

// ValidateOutcome classifies how far an actual outcome diverges from the
// expected one. A custom validator error is wrapped as ValidationFailed.
func ValidateOutcome(expected, actual interface{}, validator Validator) (DivergenceLevel, error) {
	if validator != nil {
		level, err := validator(expected, actual)
		if err != nil {
			return Critical, errors.Wrap(err, errors.ValidationFailed, "validator failed")
		}
		return level, nil
	}
	return ClassifyDivergence(utils.Similarity(expected, actual)), nil
}

// QualityScore combines the result-reported confidence (default 0.5 when
// absent) with the expected-value match fraction. The match dominates so an
// exact match clears strict thresholds even without reported confidence.
func QualityScore(result map[string]interface{}, expected interface{}) float64 {
	confidence := defaultConfidence
	if v, ok := numericField(result, "confidence"); ok {
		confidence = clamp01(v)
	}

	match := utils.Similarity(expected, outcomeValue(result))
	return 0.2*confidence + 0.8*match
}

// IterativeExecute runs the generate-validate-correct loop until the quality
// threshold is met, iterations run out, or the validator hard-fails. It
// always terminates within MaxIterations steps.
func IterativeExecute(ctx context.Context, generate GenerateFn, initial state.ReasoningState, cfg Config) (Result, error) {
	logger := logging.GetLogger()

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = DefaultQualityThreshold
	}
	threshold := AdaptThreshold(cfg.QualityThreshold, cfg.Criticality)

	current := utils.DeepCopyMap(initial)
	if current == nil {
		current = state.ReasoningState{}
	}
	opts := map[string]interface{}{}

	var (
		best        map[string]interface{}
		bestQuality = -1.0
		bestLevel   = Critical
		seenLevels  = map[DivergenceLevel]int{}
		lastErr     error
	)

	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		if err := errors.CheckContext(ctx, "iterative execute"); err != nil {
			return Result{Status: Failed, Iterations: iteration}, err
		}

		iterCtx := logging.WithIteration(ctx, iteration)
		result, err := invokeGenerate(iterCtx, generate, current, opts, cfg.CallTimeout)
		if err != nil {
			lastErr = err
			level := Critical // failed and timed-out calls count as critical divergence
			seenLevels[level]++
			logger.Warn(iterCtx, "generation attempt failed: %v", err)

			strategy := SelectStrategy(level, iteration, cfg.MaxIterations, seenLevels[level] > 1, false)
			notifyCorrection(iterCtx, cfg.OnCorrection, iteration, strategy, 0)
			applyStrategy(current, opts, strategy, iteration)
			continue
		}

		level, verr := ValidateOutcome(cfg.Expected, outcomeValue(result), cfg.Validator)
		if verr != nil {
			// The validator itself failed without producing usable
			// divergence: immediate error, no further retries
			return Result{Status: Failed, Iterations: iteration + 1}, verr
		}
		seenLevels[level]++

		quality := QualityScore(result, cfg.Expected)
		if quality > bestQuality {
			best = result
			bestQuality = quality
			bestLevel = level
		}

		logger.Debug(iterCtx, "iteration %d: divergence=%s quality=%.3f threshold=%.3f",
			iteration, level, quality, threshold)

		if quality >= threshold {
			return Result{
				Status:     Success,
				Output:     result,
				Quality:    quality,
				Divergence: level,
				Iterations: iteration + 1,
			}, nil
		}

		ambiguous, _ := result["ambiguous"].(bool)
		strategy := SelectStrategy(level, iteration, cfg.MaxIterations, seenLevels[level] > 1, ambiguous)
		notifyCorrection(iterCtx, cfg.OnCorrection, iteration, strategy, quality)
		applyStrategy(current, opts, strategy, iteration)
	}

	if best != nil {
		return Result{
			Status:     PartialSuccess,
			Output:     best,
			Quality:    bestQuality,
			Divergence: bestLevel,
			Iterations: cfg.MaxIterations,
			Partial:    true,
		}, nil
	}

	return Result{Status: Exhausted, Iterations: cfg.MaxIterations},
		errors.Wrap(lastErr, errors.GenerationFailed, "all refinement attempts failed")
}

// invokeGenerate runs one generation call under the configured timeout.
func invokeGenerate(ctx context.Context, generate GenerateFn, st state.ReasoningState, opts map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := generate(callCtx, st, opts)
	if err != nil {
		if goerrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(err, errors.Timeout, "generation call timed out")
		}
		return nil, errors.Wrap(err, errors.GenerationFailed, "generation call failed")
	}
	return result, nil
}

// applyStrategy feeds the correction decision into the next attempt.
func applyStrategy(current state.ReasoningState, opts map[string]interface{}, strategy Strategy, iteration int) {
	opts["correction"] = strategy.String()
	opts["iteration"] = iteration + 1

	switch strategy {
	case RetryAdjusted:
		temp := 0.7
		if v, ok := numericField(opts, "temperature"); ok {
			temp = v
		}
		// Alternate around the base so retries sweep both directions
		step := 0.15
		if iteration%2 == 1 {
			step = -step
		}
		opts["temperature"] = clampRange(temp+step, 0.1, 1.0)
	case BacktrackAlternative:
		current["request_backtrack"] = true
	case ClarifyRequirements:
		current["request_clarification"] = true
	}
}

// notifyCorrection invokes the observability callback, insulating the loop
// from panics it may raise.
func notifyCorrection(ctx context.Context, cb CorrectionCallback, iteration int, strategy Strategy, quality float64) {
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

func numericField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
