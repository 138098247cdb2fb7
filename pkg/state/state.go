// Package state provides immutable snapshot and stack primitives for
// backtracking over reasoning states.
//
// A reasoning state is an opaque key/value map owned by whichever component
// holds the active pointer. Snapshots taken with Capture are deep copies and
// never observe later mutation of the source state; Restore hands back a
// fresh deep copy every time, so restoring the same snapshot twice yields
// identical, independently mutable states.
package state

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/reflexion-go/pkg/utils"
)

// ReasoningState is an opaque key/value map representing an attempt's
// working state.
type ReasoningState = map[string]interface{}

// Snapshot is an immutable, deep copy of a reasoning state at a branch point.
type Snapshot struct {
	ID        string                 `json:"id"`
	State     ReasoningState         `json:"state"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Capture creates a snapshot of the given state. The source state is never
// mutated and shares no structure with the snapshot.
func Capture(st ReasoningState, metadata map[string]interface{}) Snapshot {
	return Snapshot{
		ID:        uuid.New().String(),
		State:     utils.DeepCopyMap(st),
		Metadata:  utils.DeepCopyMap(metadata),
		CreatedAt: time.Now().UTC(),
	}
}

// Restore returns the stored state. Each call returns an independent deep
// copy, so callers may mutate the result without corrupting the snapshot.
func (s Snapshot) Restore() ReasoningState {
	return utils.DeepCopyMap(s.State)
}

// Diff describes the symmetric key-level difference between two states.
type Diff struct {
	OnlyInA []string
	OnlyInB []string
	Changed map[string]ValuePair
}

// ValuePair holds the two differing values for a changed key.
type ValuePair struct {
	A interface{}
	B interface{}
}

// Empty reports whether the diff contains no differences.
func (d Diff) Empty() bool {
	return len(d.OnlyInA) == 0 && len(d.OnlyInB) == 0 && len(d.Changed) == 0
}

// Compare computes the symmetric key-level difference between two states.
// Compare(a, a) is the empty diff. Key slices are sorted for deterministic
// output.
func Compare(a, b ReasoningState) Diff {
	diff := Diff{Changed: make(map[string]ValuePair)}

	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			diff.OnlyInA = append(diff.OnlyInA, k)
			continue
		}
		if utils.HashState(ReasoningState{k: av}) != utils.HashState(ReasoningState{k: bv}) {
			diff.Changed[k] = ValuePair{A: av, B: bv}
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			diff.OnlyInB = append(diff.OnlyInB, k)
		}
	}

	sort.Strings(diff.OnlyInA)
	sort.Strings(diff.OnlyInB)
	return diff
}
