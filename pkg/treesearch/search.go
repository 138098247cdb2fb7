package treesearch

import (
	"context"
	goerrors "errors"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/logging"
)

// Search explores a thought tree with injected generation and evaluation.
type Search struct {
	cfg       Config
	thoughtFn ThoughtFn
	evalFn    EvaluationFn

	mu    sync.Mutex
	nodes map[string]*Node
	root  *Node
}

// New creates a search over the injected thought and evaluation functions.
func New(thoughtFn ThoughtFn, evalFn EvaluationFn, cfg Config) (*Search, error) {
	if thoughtFn == nil || evalFn == nil {
		return nil, errors.New(errors.InvalidInput, "thought and evaluation functions are required")
	}
	if cfg.BeamWidth <= 0 {
		cfg.BeamWidth = DefaultBeamWidth
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Search{
		cfg:       cfg,
		thoughtFn: thoughtFn,
		evalFn:    evalFn,
		nodes:     make(map[string]*Node),
	}, nil
}

// Node returns a copy of the node with the given id.
func (s *Search) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Root returns a copy of the root node of the last run.
func (s *Search) Root() (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root == nil {
		return Node{}, false
	}
	return *s.root, true
}

// Run searches from a root thought until the solution check fires, max depth
// is reached everywhere, the budget runs out, or the frontier empties.
func (s *Search) Run(ctx context.Context, rootThought string) (Result, error) {
	logger := logging.GetLogger()

	root := newNode(nil, rootThought)
	s.mu.Lock()
	s.nodes = map[string]*Node{root.ID: root}
	s.root = root
	s.mu.Unlock()

	front := newFrontier(s.cfg.Strategy)
	front.push(root)

	var (
		best        *Node
		explored    int
		maxDepthHit bool
	)

	for front.len() > 0 {
		if err := errors.CheckContext(ctx, "tree search"); err != nil {
			return Result{Best: best, Explored: explored, Reason: ReasonCanceled}, err
		}
		// Budget exhaustion stops new expansions; work already paid for has
		// completed by this point
		if s.cfg.Budget != nil && !s.cfg.Budget.HasBudget() {
			return Result{Best: best, Explored: explored, Reason: ReasonBudgetExhausted}, nil
		}

		node := front.pop()
		if s.cfg.SolutionCheck != nil && s.cfg.SolutionCheck(node) {
			logger.Debug(logging.WithDepth(ctx, node.Depth),
				"solution found at depth %d with value %.3f", node.Depth, node.Value)
			return Result{Solution: node, Best: betterOf(best, node), Explored: explored, Reason: ReasonSolution}, nil
		}
		if node.Terminal {
			continue
		}
		if node.Depth >= s.cfg.MaxDepth {
			maxDepthHit = true
			node.Terminal = true
			continue
		}

		children := s.expand(ctx, node)
		explored += len(children)

		var expandable []*Node
		for _, child := range children {
			if child.Evaluated {
				best = betterOf(best, child)
			}
			if !child.Terminal {
				expandable = append(expandable, child)
			}
		}
		front.push(expandable...)
	}

	reason := ReasonFrontierEmpty
	if maxDepthHit {
		reason = ReasonMaxDepth
	}
	return Result{Best: best, Explored: explored, Reason: reason}, nil
}

// expand generates and evaluates up to BeamWidth children for a node.
// Sibling evaluations run concurrently bounded by MaxConcurrency; results
// land in generation order regardless of scheduling.
func (s *Search) expand(ctx context.Context, node *Node) []*Node {
	logger := logging.GetLogger()
	depthCtx := logging.WithDepth(ctx, node.Depth)
	nodeCtx := NodeContext{Node: node, Path: s.pathTo(node)}

	thoughts, err := s.invokeThoughts(ctx, nodeCtx)
	if err != nil {
		logger.Warn(depthCtx, "thought generation failed, closing branch: %v", err)
		node.Terminal = true
		return nil
	}
	if len(thoughts) > s.cfg.BeamWidth {
		thoughts = thoughts[:s.cfg.BeamWidth]
	}

	// Charge one unit per evaluation before launching it, in generation
	// order; children the budget cannot cover are never started
	if s.cfg.Budget != nil {
		affordable := len(thoughts)
		for i := range thoughts {
			if err := s.cfg.Budget.Consume(1); err != nil {
				affordable = i
				break
			}
		}
		thoughts = thoughts[:affordable]
	}

	values := make([]float64, len(thoughts))
	evalErrs := make([]error, len(thoughts))

	p := pool.New().WithMaxGoroutines(s.cfg.MaxConcurrency)
	for i, thought := range thoughts {
		i, thought := i, thought
		p.Go(func() {
			values[i], evalErrs[i] = s.invokeEval(ctx, thought, nodeCtx)
		})
	}
	p.Wait()

	children := make([]*Node, 0, len(thoughts))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, thought := range thoughts {
		child := newNode(node, thought)
		switch {
		case evalErrs[i] != nil:
			// Failed or timed-out evaluations close the branch rather than
			// aborting the search
			logger.Warn(depthCtx, "evaluation failed for thought %q: %v", thought, evalErrs[i])
			child.Terminal = true
		default:
			child.Value = values[i]
			child.Evaluated = true
			if child.Value < s.cfg.PruneThreshold {
				child.Terminal = true
			}
		}
		node.Children = append(node.Children, child.ID)
		s.nodes[child.ID] = child
		children = append(children, child)
	}
	return children
}

func (s *Search) invokeThoughts(ctx context.Context, nodeCtx NodeContext) ([]string, error) {
	callCtx := ctx
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	thoughts, err := s.thoughtFn(callCtx, nodeCtx, s.cfg.BeamWidth, s.cfg.Opts)
	if err != nil {
		if goerrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(err, errors.Timeout, "thought generation timed out")
		}
		return nil, errors.Wrap(err, errors.GenerationFailed, "thought generation failed")
	}
	return thoughts, nil
}

func (s *Search) invokeEval(ctx context.Context, thought string, nodeCtx NodeContext) (float64, error) {
	callCtx := ctx
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	value, err := s.evalFn(callCtx, thought, nodeCtx, s.cfg.Opts)
	if err != nil {
		if goerrors.Is(err, context.DeadlineExceeded) {
			return 0, errors.Wrap(err, errors.Timeout, "evaluation timed out")
		}
		return 0, errors.Wrap(err, errors.GenerationFailed, "evaluation failed")
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value, nil
}

// pathTo collects thoughts from the root to the node, root first.
func (s *Search) pathTo(node *Node) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reversed []string
	for n := node; n != nil; {
		reversed = append(reversed, n.Thought)
		if n.ParentID == "" {
			break
		}
		n = s.nodes[n.ParentID]
	}

	path := make([]string, len(reversed))
	for i, t := range reversed {
		path[len(reversed)-1-i] = t
	}
	return path
}

func betterOf(a, b *Node) *Node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Evaluated && (!a.Evaluated || b.Value > a.Value) {
		return b
	}
	return a
}
