// Package treesearch explores a tree of candidate thoughts using BFS, DFS,
// or best-first traversal. Thought generation and evaluation are injected
// functions; the search itself contains no hidden randomness, so given the
// same injected outputs and strategy the tree shape and traversal order are
// reproducible.
package treesearch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/reflexion-go/pkg/budget"
	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
)

const (
	// DefaultBeamWidth bounds candidate thoughts per expansion.
	DefaultBeamWidth = 3

	// DefaultMaxDepth bounds tree depth when the config leaves it unset.
	DefaultMaxDepth = 3
)

// Strategy selects the traversal order.
type Strategy int

const (
	BFS Strategy = iota
	DFS
	BestFirst
)

func (s Strategy) String() string {
	switch s {
	case BFS:
		return "bfs"
	case DFS:
		return "dfs"
	case BestFirst:
		return "best_first"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a config string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "bfs":
		return BFS, nil
	case "dfs":
		return DFS, nil
	case "best_first":
		return BestFirst, nil
	default:
		return BFS, errors.WithFields(
			errors.New(errors.InvalidInput, "unknown search strategy"),
			errors.Fields{"strategy": s},
		)
	}
}

// Node is one candidate thought in the search tree. Every non-root node's
// ParentID references an existing node one level up; Value is set only after
// evaluation runs.
type Node struct {
	ID        string
	ParentID  string // empty for the root
	Depth     int
	Thought   string
	Value     float64
	Evaluated bool
	Terminal  bool // pruned, failed, or out of depth
	Children  []string
}

// NodeContext is what thought generation sees: the node being expanded and
// the chain of thoughts leading to it, root first.
type NodeContext struct {
	Node *Node
	Path []string
}

// ThoughtFn produces up to beamWidth candidate next-thoughts for a node.
// Generation is not owned by the search; tests substitute deterministic
// simulations with this signature.
type ThoughtFn func(ctx context.Context, nodeCtx NodeContext, beamWidth int, opts map[string]interface{}) ([]string, error)

// EvaluationFn scores a candidate thought in [0, 1].
type EvaluationFn func(ctx context.Context, thought string, nodeCtx NodeContext, opts map[string]interface{}) (float64, error)

// SolutionCheck halts the search when it returns true for a visited node.
type SolutionCheck func(node *Node) bool

// Config tunes the search.
type Config struct {
	Strategy       Strategy
	BeamWidth      int
	MaxDepth       int
	PruneThreshold float64
	SolutionCheck  SolutionCheck

	// Budget, when set, charges one unit per evaluated thought. Once it
	// runs out, in-flight evaluations finish but no new expansions start.
	Budget *budget.Budget

	// MaxConcurrency bounds concurrent sibling evaluations at one frontier
	// node. The default of 1 keeps evaluation calls strictly sequential.
	MaxConcurrency int

	// CallTimeout bounds each injected call. A timed-out evaluation scores
	// zero and the node is marked terminal, eligible for pruning rather
	// than aborting the search.
	CallTimeout time.Duration

	// Opts is passed through to the injected functions.
	Opts map[string]interface{}
}

// DefaultConfig returns search defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:       BFS,
		BeamWidth:      DefaultBeamWidth,
		MaxDepth:       DefaultMaxDepth,
		MaxConcurrency: 1,
	}
}

// TerminationReason says why a search run ended.
type TerminationReason string

const (
	ReasonSolution        TerminationReason = "solution"
	ReasonMaxDepth        TerminationReason = "max_depth"
	ReasonBudgetExhausted TerminationReason = "budget_exhausted"
	ReasonFrontierEmpty   TerminationReason = "frontier_empty"
	ReasonCanceled        TerminationReason = "canceled"
)

// Result is the outcome of one search run.
type Result struct {
	Solution *Node // nil when no node satisfied the solution check
	Best     *Node // highest-valued evaluated node seen
	Explored int   // number of generated (evaluated) nodes
	Reason   TerminationReason
}

func newNode(parent *Node, thought string) *Node {
	n := &Node{
		ID:      uuid.New().String(),
		Thought: thought,
	}
	if parent != nil {
		n.ParentID = parent.ID
		n.Depth = parent.Depth + 1
	}
	return n
}
