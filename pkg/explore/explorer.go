// Package explore generates diverse alternative reasoning states while
// steering clear of paths that already failed. Variation is deterministic:
// the three strategies rotate round-robin and parameter steps derive from an
// internal attempt counter, so a fresh explorer given the same inputs
// produces the same candidates.
package explore

import (
	"sync"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
	"github.com/XiaoConstantine/reflexion-go/pkg/utils"
)

const (
	// DefaultDiversityThreshold is the minimum distance a new candidate must
	// keep from every failed path.
	DefaultDiversityThreshold = 0.3

	// DefaultParameterStep bounds each perturbation of the sampling
	// temperature.
	DefaultParameterStep = 0.15

	// defaultAttemptsPerCandidate bounds the retries spent searching for a
	// sufficiently diverse candidate before giving up.
	defaultAttemptsPerCandidate = 5
)

// VariationStrategy names one of the ways an alternative is derived.
type VariationStrategy int

const (
	ParameterAdjustment VariationStrategy = iota
	StrategyChange
	BacktrackToEarlier
)

func (v VariationStrategy) String() string {
	switch v {
	case ParameterAdjustment:
		return "parameter_adjustment"
	case StrategyChange:
		return "strategy_change"
	case BacktrackToEarlier:
		return "backtrack_to_earlier"
	default:
		return "unknown"
	}
}

// Candidate is one proposed alternative reasoning state.
type Candidate struct {
	State    state.ReasoningState
	Strategy VariationStrategy
}

// Options configures exploration behavior.
type Options struct {
	// DiversityThreshold is the minimum distance from every failed path.
	DiversityThreshold float64

	// ParameterStep bounds each numeric perturbation.
	ParameterStep float64

	// Strategies is the ordered cycle for the strategy-change variation.
	Strategies []string

	// AttemptsPerCandidate bounds retries per requested candidate.
	AttemptsPerCandidate int
}

// DefaultOptions returns exploration defaults.
func DefaultOptions() Options {
	return Options{
		DiversityThreshold:   DefaultDiversityThreshold,
		ParameterStep:        DefaultParameterStep,
		Strategies:           []string{"analytical", "creative", "systematic", "intuitive"},
		AttemptsPerCandidate: defaultAttemptsPerCandidate,
	}
}

// Explorer proposes alternatives and remembers which paths already failed.
// The failed set grows monotonically within one run and is discarded with
// the explorer.
type Explorer struct {
	mu      sync.Mutex
	failed  map[string]state.ReasoningState // hash -> failed state
	opts    Options
	attempt int // deterministic variation counter
}

// New creates an explorer with the given options.
func New(opts Options) *Explorer {
	if opts.DiversityThreshold <= 0 {
		opts.DiversityThreshold = DefaultDiversityThreshold
	}
	if opts.ParameterStep <= 0 {
		opts.ParameterStep = DefaultParameterStep
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultOptions().Strategies
	}
	if opts.AttemptsPerCandidate <= 0 {
		opts.AttemptsPerCandidate = defaultAttemptsPerCandidate
	}
	return &Explorer{
		failed: make(map[string]state.ReasoningState),
		opts:   opts,
	}
}

// MarkPathFailed records a state as attempted and rejected.
func (e *Explorer) MarkPathFailed(st state.ReasoningState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed[utils.HashState(st)] = utils.DeepCopyMap(st)
}

// PathAttempted reports whether an equivalent state was already rejected.
func (e *Explorer) PathAttempted(st state.ReasoningState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.failed[utils.HashState(st)]
	return ok
}

// FailedCount returns the size of the failed-path set.
func (e *Explorer) FailedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.failed)
}

// GenerateAlternative produces one candidate that differs from every failed
// path by at least the diversity threshold. When bounded retries cannot find
// one, it returns an ExhaustedAlternatives error instead of a near-duplicate.
func (e *Explorer) GenerateAlternative(st state.ReasoningState, history []interface{}) (Candidate, error) {
	candidates, err := e.generate(st, history, 1, nil)
	if err != nil {
		return Candidate{}, err
	}
	return candidates[0], nil
}

// GenerateAlternatives produces up to n mutually diverse candidates using the
// three variation strategies round-robin.
func (e *Explorer) GenerateAlternatives(st state.ReasoningState, history []interface{}, n int) ([]Candidate, error) {
	if n <= 0 {
		return nil, errors.New(errors.InvalidInput, "candidate count must be positive")
	}
	return e.generate(st, history, n, nil)
}

// BeamSearch generates up to width alternatives honoring diversity, in
// deterministic iteration order. Unlike GenerateAlternatives it returns what
// it found when variation runs dry before the beam fills, erroring only when
// nothing at all could be produced.
func (e *Explorer) BeamSearch(st state.ReasoningState, width int) ([]Candidate, error) {
	if width <= 0 {
		return nil, errors.New(errors.InvalidInput, "beam width must be positive")
	}

	var beam []Candidate
	for len(beam) < width {
		candidates, err := e.generate(st, nil, 1, beam)
		if err != nil {
			break
		}
		beam = append(beam, candidates[0])
	}

	if len(beam) == 0 {
		return nil, errors.New(errors.ExhaustedAlternatives,
			"no diverse candidate could be generated for the beam")
	}
	return beam, nil
}

// generate is the shared candidate loop. batch holds candidates already
// accepted in this call so results stay mutually diverse.
func (e *Explorer) generate(st state.ReasoningState, history []interface{}, n int, batch []Candidate) ([]Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	accepted := make([]Candidate, 0, n)
	for len(accepted) < n {
		found := false
		for attempt := 0; attempt < e.opts.AttemptsPerCandidate; attempt++ {
			strategy := VariationStrategy(e.attempt % 3)
			candidate := e.vary(st, history, strategy)
			e.attempt++

			if candidate.State == nil {
				continue // variation not applicable, try the next one
			}
			if !e.diverseLocked(candidate.State, append(batch, accepted...)) {
				continue
			}
			accepted = append(accepted, candidate)
			found = true
			break
		}
		if !found {
			if len(accepted) > 0 && n > 1 {
				// Partial batch: surface what we have alongside the signal
				return accepted, errors.WithFields(
					errors.New(errors.ExhaustedAlternatives, "variation exhausted before batch filled"),
					errors.Fields{"requested": n, "generated": len(accepted)},
				)
			}
			return nil, errors.New(errors.ExhaustedAlternatives,
				"no candidate clears the diversity threshold")
		}
	}
	return accepted, nil
}

// diverseLocked checks a candidate against the failed set and the current
// batch. Caller must hold the mutex.
func (e *Explorer) diverseLocked(candidate state.ReasoningState, batch []Candidate) bool {
	if _, dup := e.failed[utils.HashState(candidate)]; dup {
		return false
	}
	for _, failed := range e.failed {
		if DiversityScore(candidate, failed) < e.opts.DiversityThreshold {
			return false
		}
	}
	for _, other := range batch {
		if DiversityScore(candidate, other.State) < e.opts.DiversityThreshold {
			return false
		}
	}
	return true
}

// vary derives one candidate from the base state using the given strategy.
// Returns a nil-state candidate when the strategy is not applicable.
func (e *Explorer) vary(st state.ReasoningState, history []interface{}, strategy VariationStrategy) Candidate {
	switch strategy {
	case ParameterAdjustment:
		return Candidate{State: e.adjustParameter(st), Strategy: ParameterAdjustment}
	case StrategyChange:
		return Candidate{State: e.changeStrategy(st), Strategy: StrategyChange}
	case BacktrackToEarlier:
		return Candidate{State: e.backtrackEarlier(st, history), Strategy: BacktrackToEarlier}
	default:
		return Candidate{}
	}
}

// adjustParameter perturbs the sampling temperature by a bounded step,
// alternating direction so repeated attempts sweep both ways.
func (e *Explorer) adjustParameter(st state.ReasoningState) state.ReasoningState {
	out := utils.DeepCopyMap(st)
	if out == nil {
		out = state.ReasoningState{}
	}

	temp := 0.7
	if v, ok := numericValue(out["temperature"]); ok {
		temp = v
	}

	step := e.opts.ParameterStep * float64(1+e.attempt/3)
	if e.attempt%2 == 1 {
		step = -step
	}
	temp += step
	if temp < 0.1 {
		temp = 0.1
	}
	if temp > 1.0 {
		temp = 1.0
	}

	out["temperature"] = temp
	out["variation"] = ParameterAdjustment.String()
	return out
}

// changeStrategy cycles the high-level strategy through the configured list.
func (e *Explorer) changeStrategy(st state.ReasoningState) state.ReasoningState {
	out := utils.DeepCopyMap(st)
	if out == nil {
		out = state.ReasoningState{}
	}

	current, _ := out["strategy"].(string)
	next := e.opts.Strategies[0]
	for i, s := range e.opts.Strategies {
		if s == current {
			next = e.opts.Strategies[(i+1)%len(e.opts.Strategies)]
			break
		}
	}

	out["strategy"] = next
	out["variation"] = StrategyChange.String()
	return out
}

// backtrackEarlier re-anchors to the most recent map-shaped ancestor in the
// history and varies from there. Non-map ancestors are skipped; with no
// usable ancestor the strategy is not applicable.
func (e *Explorer) backtrackEarlier(st state.ReasoningState, history []interface{}) state.ReasoningState {
	for i := len(history) - 1; i >= 0; i-- {
		ancestor, ok := history[i].(map[string]interface{})
		if !ok {
			continue
		}
		out := utils.DeepCopyMap(ancestor)
		out["variation"] = BacktrackToEarlier.String()
		out["anchored_step"] = i
		return out
	}
	return nil
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
