// Package deadend classifies a reasoning trace as unrecoverable using a set
// of independently toggleable heuristics. Detection is advisory: the
// orchestrator combines it with budget state to decide whether to backtrack.
package deadend

import (
	"fmt"
	"math"

	"github.com/XiaoConstantine/reflexion-go/pkg/utils"
)

const (
	// DefaultRepeatThreshold is how many times a failure signature must
	// repeat before the trace is considered stuck.
	DefaultRepeatThreshold = 3

	// DefaultConfidenceThreshold marks results below it as low confidence.
	DefaultConfidenceThreshold = 0.3

	// DefaultStallWindow is how many attempts back to look for progress.
	DefaultStallWindow = 3

	// DefaultHistoryWindow bounds how far back repeated failures are counted.
	DefaultHistoryWindow = 10
)

// ProgressFn extracts a monotonic progress metric from a result. The second
// return value reports whether the entry carries the metric at all.
type ProgressFn func(entry map[string]interface{}) (float64, bool)

// Predicate is a caller-supplied dead-end check, OR'd with the built-ins.
// The returned string names the reason when triggered.
type Predicate func(current map[string]interface{}, history []map[string]interface{}) (bool, string)

// Options configures which heuristics run and their thresholds.
type Options struct {
	RepeatThreshold     int
	HistoryWindow       int
	ConfidenceThreshold float64
	StallWindow         int

	CheckRepeatedFailure     bool
	CheckCircularReasoning   bool
	CheckLowConfidence       bool
	CheckStalledProgress     bool
	CheckConstraintViolation bool

	// Progress supplies the metric for the stalled-progress heuristic;
	// without it the heuristic is skipped.
	Progress ProgressFn

	// Custom is OR'd with the built-in heuristics.
	Custom Predicate
}

// DefaultOptions enables every built-in heuristic with spec defaults.
func DefaultOptions() Options {
	return Options{
		RepeatThreshold:          DefaultRepeatThreshold,
		HistoryWindow:            DefaultHistoryWindow,
		ConfidenceThreshold:      DefaultConfidenceThreshold,
		StallWindow:              DefaultStallWindow,
		CheckRepeatedFailure:     true,
		CheckCircularReasoning:   true,
		CheckLowConfidence:       true,
		CheckStalledProgress:     true,
		CheckConstraintViolation: true,
	}
}

// Result carries the detection verdict, the reasons that triggered it, and a
// confidence that grows with the number of independently triggered
// heuristics.
type Result struct {
	IsDeadEnd  bool
	Reasons    []string
	Confidence float64
}

// Detect reports whether the current result looks unrecoverable.
func Detect(current map[string]interface{}, history []interface{}, opts Options) bool {
	return DetectWithReasons(current, history, opts).IsDeadEnd
}

// DetectWithReasons runs every enabled heuristic and aggregates the verdict.
// Non-map history entries are filtered out before comparison rather than
// treated as matches or causing failures.
func DetectWithReasons(current map[string]interface{}, history []interface{}, opts Options) Result {
	opts = withDefaults(opts)
	entries := filterMapEntries(history)

	var reasons []string

	if opts.CheckRepeatedFailure {
		if ok, reason := repeatedFailure(current, entries, opts); ok {
			reasons = append(reasons, reason)
		}
	}
	if opts.CheckCircularReasoning {
		if ok, reason := circularReasoning(current, entries); ok {
			reasons = append(reasons, reason)
		}
	}
	if opts.CheckLowConfidence {
		if ok, reason := lowConfidence(current, opts); ok {
			reasons = append(reasons, reason)
		}
	}
	if opts.CheckStalledProgress && opts.Progress != nil {
		if ok, reason := stalledProgress(current, entries, opts); ok {
			reasons = append(reasons, reason)
		}
	}
	if opts.CheckConstraintViolation {
		if violated, ok := current["constraint_violated"].(bool); ok && violated {
			reasons = append(reasons, "constraint violated")
		}
	}
	if opts.Custom != nil {
		if ok, reason := opts.Custom(current, entries); ok {
			if reason == "" {
				reason = "custom predicate triggered"
			}
			reasons = append(reasons, reason)
		}
	}

	return Result{
		IsDeadEnd:  len(reasons) > 0,
		Reasons:    reasons,
		Confidence: detectionConfidence(len(reasons)),
	}
}

func withDefaults(opts Options) Options {
	if opts.RepeatThreshold <= 0 {
		opts.RepeatThreshold = DefaultRepeatThreshold
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if opts.StallWindow <= 0 {
		opts.StallWindow = DefaultStallWindow
	}
	return opts
}

// filterMapEntries drops history entries that are not key/value maps so the
// heuristics never compare against incomparable values.
func filterMapEntries(history []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(history))
	for _, h := range history {
		if m, ok := h.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// failureSignature extracts a comparable signature for a failed attempt.
// Entries without a failure marker produce an empty signature.
func failureSignature(entry map[string]interface{}) string {
	if sig, ok := entry["failure_signature"].(string); ok && sig != "" {
		return sig
	}
	if errVal, ok := entry["error"]; ok && errVal != nil {
		return fmt.Sprintf("%v", errVal)
	}
	return ""
}

func repeatedFailure(current map[string]interface{}, history []map[string]interface{}, opts Options) (bool, string) {
	sig := failureSignature(current)
	if sig == "" {
		return false, ""
	}

	window := history
	if len(window) > opts.HistoryWindow {
		window = window[len(window)-opts.HistoryWindow:]
	}

	count := 1 // the current result itself
	for _, entry := range window {
		if failureSignature(entry) == sig {
			count++
		}
	}
	if count >= opts.RepeatThreshold {
		return true, fmt.Sprintf("failure signature repeated %d times: %s", count, sig)
	}
	return false, ""
}

// circularReasoning triggers when the current state hash matches an entry
// seen at least two steps earlier. Short histories cannot establish a cycle.
func circularReasoning(current map[string]interface{}, history []map[string]interface{}) (bool, string) {
	if len(history) < 3 {
		return false, ""
	}

	currentHash := utils.HashState(current)
	// Skip the immediately preceding entry: revisiting it is refinement, not
	// circularity
	for i := 0; i < len(history)-1; i++ {
		if utils.HashState(history[i]) == currentHash {
			return true, fmt.Sprintf("state revisits step %d of the trace", i)
		}
	}
	return false, ""
}

func lowConfidence(current map[string]interface{}, opts Options) (bool, string) {
	conf, ok := numericField(current, "confidence")
	if !ok {
		return false, ""
	}
	if conf < opts.ConfidenceThreshold {
		return true, fmt.Sprintf("confidence %.2f below threshold %.2f", conf, opts.ConfidenceThreshold)
	}
	return false, ""
}

func stalledProgress(current map[string]interface{}, history []map[string]interface{}, opts Options) (bool, string) {
	currentProgress, ok := opts.Progress(current)
	if !ok {
		return false, ""
	}

	window := history
	if len(window) > opts.StallWindow {
		window = window[len(window)-opts.StallWindow:]
	}

	var values []float64
	for _, entry := range window {
		if v, ok := opts.Progress(entry); ok {
			values = append(values, v)
		}
	}
	if len(values) < opts.StallWindow {
		return false, ""
	}

	for _, v := range values {
		if currentProgress > v {
			return false, ""
		}
	}
	return true, fmt.Sprintf("no progress beyond %.3f over last %d attempts", currentProgress, len(values))
}

// detectionConfidence grows monotonically with the number of independently
// triggered heuristics: 0, 0.5, 0.75, 0.875, ...
func detectionConfidence(triggered int) float64 {
	if triggered <= 0 {
		return 0
	}
	return 1 - math.Pow(0.5, float64(triggered))
}

func numericField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
