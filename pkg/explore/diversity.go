package explore

import (
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
	"github.com/XiaoConstantine/reflexion-go/pkg/utils"
)

// DiversityScore measures how different two reasoning states are, as a
// Jaccard-style distance over key/value pairs in [0, 1]. Identical states
// score 0; states sharing nothing score 1. The score is symmetric.
func DiversityScore(a, b state.ReasoningState) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	itemsA := stateItems(a)
	itemsB := stateItems(b)

	intersection := 0
	for item := range itemsA {
		if _, ok := itemsB[item]; ok {
			intersection++
		}
	}
	union := len(itemsA) + len(itemsB) - intersection
	if union == 0 {
		return 0
	}
	return 1 - float64(intersection)/float64(union)
}

// stateItems flattens a state into comparable key=value items. Values hash
// through the canonical state digest so nested structures compare correctly.
func stateItems(st state.ReasoningState) map[string]struct{} {
	items := make(map[string]struct{}, len(st))
	for k, v := range st {
		items[k+"="+utils.HashState(state.ReasoningState{"v": v})] = struct{}{}
	}
	return items
}
