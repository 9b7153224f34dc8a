package scenario

import (
	"fmt"
	"math"

	"github.com/aretw0/plantopt/pkg/domain"
)

// DefaultTolerance bounds how far sibling probabilities may sum away from 1.
const DefaultTolerance = 1e-6

// Node is one state of the world at one stage. Nodes returned by a Tree are shared
// with the arena and must be treated as read-only.
type Node struct {
	ID       domain.NodeID   `json:"id"`
	Name     string          `json:"name"`
	Stage    int             `json:"stage"`
	Prob     float64         `json:"prob"` // conditional on the parent
	Parent   domain.NodeID   `json:"parent"`
	Children []domain.NodeID `json:"children,omitempty"`
	Payload  domain.Payload  `json:"payload,omitempty"`
	// Synthetic marks nodes created by truncation.
	Synthetic bool `json:"synthetic,omitempty"`
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.Parent == domain.NoParent }

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Scenario is one root-to-leaf path.
type Scenario struct {
	Leaf domain.NodeID
	Path []domain.NodeID // root first
	Prob float64         // unconditional probability of the leaf
}

// TruncationInfo links a truncated tree to the tree it was derived from.
type TruncationInfo struct {
	AtStage int
	Source  *Tree
}

// Tree is an arena of nodes indexed by NodeID. The root always has ID 0.
// A Tree is immutable once built.
type Tree struct {
	nodes      []Node
	uncond     []float64
	truncation *TruncationInfo
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Root returns the stage-0 node.
func (t *Tree) Root() *Node { return &t.nodes[0] }

// Node returns the node with the given id.
func (t *Tree) Node(id domain.NodeID) (*Node, error) {
	if int(id) < 0 || int(id) >= len(t.nodes) {
		return nil, fmt.Errorf("node %d: %w", id, domain.ErrMalformedTree)
	}
	return &t.nodes[id], nil
}

// MustNode is Node for identifiers obtained from the tree itself.
func (t *Tree) MustNode(id domain.NodeID) *Node {
	n, err := t.Node(id)
	if err != nil {
		panic(err)
	}
	return n
}

// Unconditional returns the product of conditional probabilities from the root to id.
func (t *Tree) Unconditional(id domain.NodeID) (float64, error) {
	if _, err := t.Node(id); err != nil {
		return 0, err
	}
	return t.uncond[id], nil
}

// MustUnconditional is Unconditional for identifiers obtained from the tree itself.
func (t *Tree) MustUnconditional(id domain.NodeID) float64 {
	p, err := t.Unconditional(id)
	if err != nil {
		panic(err)
	}
	return p
}

// Depth returns the largest stage index.
func (t *Tree) Depth() int {
	depth := 0
	for i := range t.nodes {
		depth = max(depth, t.nodes[i].Stage)
	}
	return depth
}

// BFS returns every node ordered by stage, siblings in declaration order.
func (t *Tree) BFS() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	queue := []domain.NodeID{0}
	for len(queue) > 0 {
		n := &t.nodes[queue[0]]
		queue = queue[1:]
		out = append(out, n)
		queue = append(queue, n.Children...)
	}
	return out
}

// Stage returns the nodes at stage s in breadth-first order.
func (t *Tree) Stage(s int) []*Node {
	var out []*Node
	for _, n := range t.BFS() {
		if n.Stage == s {
			out = append(out, n)
		}
	}
	return out
}

// Leaves returns the terminal nodes in breadth-first order.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	for _, n := range t.BFS() {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// PathToRoot returns the nodes from the root to id, root first.
func (t *Tree) PathToRoot(id domain.NodeID) ([]*Node, error) {
	n, err := t.Node(id)
	if err != nil {
		return nil, err
	}
	var path []*Node
	for {
		path = append(path, n)
		if n.IsRoot() {
			break
		}
		n = &t.nodes[n.Parent]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Scenarios returns one scenario per leaf.
func (t *Tree) Scenarios() []Scenario {
	leaves := t.Leaves()
	out := make([]Scenario, 0, len(leaves))
	for _, leaf := range leaves {
		path, _ := t.PathToRoot(leaf.ID)
		ids := make([]domain.NodeID, len(path))
		for i, n := range path {
			ids[i] = n.ID
		}
		out = append(out, Scenario{Leaf: leaf.ID, Path: ids, Prob: t.uncond[leaf.ID]})
	}
	return out
}

// DescendantLeaves returns the leaves below id (id itself when it is a leaf).
func (t *Tree) DescendantLeaves(id domain.NodeID) []*Node {
	if _, err := t.Node(id); err != nil {
		return nil
	}
	var out []*Node
	stack := []domain.NodeID{id}
	for len(stack) > 0 {
		n := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if n.IsLeaf() {
			out = append(out, n)
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}

// Truncation reports whether the tree was derived by Truncate.
func (t *Tree) Truncation() (TruncationInfo, bool) {
	if t.truncation == nil {
		return TruncationInfo{}, false
	}
	return *t.truncation, true
}

// newTree validates the arena and computes unconditional probabilities.
func newTree(nodes []Node, tol float64) (*Tree, error) {
	if len(nodes) == 0 {
		return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: "tree has no root"}
	}
	if !nodes[0].IsRoot() || nodes[0].Stage != 0 {
		return nil, &domain.MalformedTreeError{Node: 0, Reason: "first node must be a stage-0 root"}
	}
	uncond := make([]float64, len(nodes))
	uncond[0] = 1
	listed := make([]bool, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if n.ID != domain.NodeID(i) {
			return nil, &domain.MalformedTreeError{Node: n.ID, Reason: "identifier does not match arena position"}
		}
		if i > 0 {
			if int(n.Parent) < 0 || int(n.Parent) >= i {
				return nil, &domain.MalformedTreeError{Node: n.ID, Reason: "parent must be declared before the child"}
			}
			if n.Stage != nodes[n.Parent].Stage+1 {
				return nil, &domain.MalformedTreeError{Node: n.ID, Reason: "stage must be one greater than the parent's"}
			}
			if !listed[i] {
				return nil, &domain.MalformedTreeError{Node: n.ID, Reason: "node is not listed among its parent's children"}
			}
			if math.IsNaN(n.Prob) || n.Prob < 0 || n.Prob > 1+tol {
				return nil, &domain.MalformedTreeError{Node: n.ID, Reason: fmt.Sprintf("invalid conditional probability %g", n.Prob)}
			}
			uncond[i] = uncond[n.Parent] * n.Prob
		}
		if n.IsLeaf() {
			continue
		}
		sum := 0.0
		for _, c := range n.Children {
			if int(c) <= i || int(c) >= len(nodes) || nodes[c].Parent != n.ID {
				return nil, &domain.MalformedTreeError{Node: n.ID, Reason: fmt.Sprintf("inconsistent child %d", c)}
			}
			listed[c] = true
			sum += nodes[c].Prob
		}
		if math.Abs(sum-1) > tol {
			return nil, &domain.MalformedTreeError{Node: n.ID, Reason: fmt.Sprintf("children probabilities sum to %g", sum)}
		}
	}
	return &Tree{nodes: nodes, uncond: uncond}, nil
}
