package treesearch

import "sort"

// frontier holds unexpanded nodes and hands them out in strategy order.
type frontier interface {
	push(nodes ...*Node)
	pop() *Node
	len() int
}

func newFrontier(strategy Strategy) frontier {
	switch strategy {
	case DFS:
		return &stackFrontier{}
	case BestFirst:
		return &bestFirstFrontier{}
	default:
		return &queueFrontier{}
	}
}

// queueFrontier is FIFO: all nodes at depth d come out before any at d+1,
// children in generation order.
type queueFrontier struct {
	nodes []*Node
}

func (q *queueFrontier) push(nodes ...*Node) {
	q.nodes = append(q.nodes, nodes...)
}

func (q *queueFrontier) pop() *Node {
	n := q.nodes[0]
	q.nodes = q.nodes[1:]
	return n
}

func (q *queueFrontier) len() int { return len(q.nodes) }

// stackFrontier is LIFO. Siblings are pushed lowest-value first so the
// highest-scoring child is fully explored before any sibling; the explicit
// stack is what the search backtracks through when a branch is exhausted.
type stackFrontier struct {
	nodes []*Node
}

func (s *stackFrontier) push(nodes ...*Node) {
	ordered := make([]*Node, len(nodes))
	copy(ordered, nodes)
	// Stable sort keeps generation order among equal values
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Value < ordered[j].Value
	})
	s.nodes = append(s.nodes, ordered...)
}

func (s *stackFrontier) pop() *Node {
	n := s.nodes[len(s.nodes)-1]
	s.nodes = s.nodes[:len(s.nodes)-1]
	return n
}

func (s *stackFrontier) len() int { return len(s.nodes) }

// bestFirstFrontier always yields the globally highest-valued unexpanded
// node. Ties resolve to the earliest-inserted node so traversal order is
// reproducible.
type bestFirstFrontier struct {
	nodes []orderedNode
	seq   int
}

type orderedNode struct {
	node *Node
	seq  int
}

func (b *bestFirstFrontier) push(nodes ...*Node) {
	for _, n := range nodes {
		b.nodes = append(b.nodes, orderedNode{node: n, seq: b.seq})
		b.seq++
	}
}

func (b *bestFirstFrontier) pop() *Node {
	bestIdx := 0
	for i := 1; i < len(b.nodes); i++ {
		candidate, incumbent := b.nodes[i], b.nodes[bestIdx]
		if candidate.node.Value > incumbent.node.Value ||
			(candidate.node.Value == incumbent.node.Value && candidate.seq < incumbent.seq) {
			bestIdx = i
		}
	}
	n := b.nodes[bestIdx].node
	b.nodes = append(b.nodes[:bestIdx], b.nodes[bestIdx+1:]...)
	return n
}

func (b *bestFirstFrontier) len() int { return len(b.nodes) }
