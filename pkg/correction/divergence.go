// Package correction validates outcomes against expectations, classifies how
// far they diverge, and drives the convergence loop that decides between
// refining in place and accepting partial success.
package correction

// DivergenceLevel grades how far an actual outcome is from the expected one.
// Divergence is control-flow data, not an error: only Match terminates the
// loop successfully, and everything else feeds strategy selection.
type DivergenceLevel int

const (
	Match DivergenceLevel = iota
	Minor
	Moderate
	Critical
)

func (d DivergenceLevel) String() string {
	switch d {
	case Match:
		return "match"
	case Minor:
		return "minor"
	case Moderate:
		return "moderate"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Classification thresholds. Fixed by design: classification is a pure
// function of the similarity score so behavior stays predictable across call
// sites.
const (
	matchThreshold    = 0.95
	minorThreshold    = 0.8
	moderateThreshold = 0.5
)

// ClassifyDivergence derives the divergence level from a similarity score in
// [0, 1].
func ClassifyDivergence(similarity float64) DivergenceLevel {
	switch {
	case similarity > matchThreshold:
		return Match
	case similarity >= minorThreshold:
		return Minor
	case similarity >= moderateThreshold:
		return Moderate
	default:
		return Critical
	}
}

// Strategy names the correction applied between iterations.
type Strategy int

const (
	// NoCorrection means the outcome matched; nothing to fix.
	NoCorrection Strategy = iota

	// RetryAdjusted retries with perturbed generation parameters.
	RetryAdjusted

	// BacktrackAlternative abandons the current path for a different branch.
	BacktrackAlternative

	// ClarifyRequirements asks the caller to disambiguate the expectation.
	ClarifyRequirements

	// AcceptPartial stops refining and surfaces the best result so far.
	AcceptPartial
)

func (s Strategy) String() string {
	switch s {
	case NoCorrection:
		return "no_correction"
	case RetryAdjusted:
		return "retry_adjusted"
	case BacktrackAlternative:
		return "backtrack_alternative"
	case ClarifyRequirements:
		return "clarify_requirements"
	case AcceptPartial:
		return "accept_partial"
	default:
		return "unknown"
	}
}

// SelectStrategy picks the correction for the observed divergence. The choice
// is deterministic in (divergence, iteration, repeated-failure, ambiguity).
func SelectStrategy(divergence DivergenceLevel, iteration, maxIterations int, repeated, ambiguous bool) Strategy {
	if divergence == Match {
		return NoCorrection
	}
	// Final iteration: take what we have regardless of level
	if iteration >= maxIterations-1 {
		return AcceptPartial
	}

	switch divergence {
	case Minor:
		return RetryAdjusted
	case Moderate:
		if repeated {
			return BacktrackAlternative
		}
		return RetryAdjusted
	case Critical:
		if ambiguous {
			return ClarifyRequirements
		}
		return BacktrackAlternative
	default:
		return RetryAdjusted
	}
}

// Criticality grades how strict the acceptance bar should be for a task.
type Criticality int

const (
	MediumCriticality Criticality = iota
	LowCriticality
	HighCriticality
)

// ParseCriticality converts a config string into a Criticality. Unknown
// strings fall back to medium.
func ParseCriticality(s string) Criticality {
	switch s {
	case "low":
		return LowCriticality
	case "high":
		return HighCriticality
	default:
		return MediumCriticality
	}
}

// AdaptThreshold shifts the base quality threshold by task criticality. Low
// criticality relaxes the bar by 0.2 with a floor of 0.5; high criticality
// raises it by 0.2 with a ceiling of 0.95.
func AdaptThreshold(base float64, criticality Criticality) float64 {
	switch criticality {
	case LowCriticality:
		adjusted := base - 0.2
		if adjusted < 0.5 {
			adjusted = 0.5
		}
		return adjusted
	case HighCriticality:
		adjusted := base + 0.2
		if adjusted > 0.95 {
			adjusted = 0.95
		}
		return adjusted
	default:
		return base
	}
}
