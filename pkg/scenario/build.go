package scenario

import (
	"fmt"

	"github.com/aretw0/plantopt/pkg/domain"
)

// BranchFunc produces the conditional probability and realization of the k-th child of parent.
type BranchFunc func(parent *Node, k int) (prob float64, payload domain.Payload)

// StageSpec describes how every node of one stage branches into the next.
type StageSpec struct {
	Branches int
	Branch   BranchFunc
}

// BranchingSpec describes a tree stage by stage. Stages[s] expands stage s into s+1.
type BranchingSpec struct {
	Root   domain.Payload
	Stages []StageSpec
}

// Option configures tree construction.
type Option func(*options)

type options struct {
	tolerance float64
}

// WithTolerance sets the allowed deviation of sibling probability sums from 1.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		o.tolerance = tol
	}
}

func applyOptions(opts []Option) options {
	o := options{tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Build expands spec into a tree. It fails with a *domain.MalformedTreeError when a stage
// yields no children or when sibling probabilities do not sum to 1.
func Build(spec BranchingSpec, opts ...Option) (*Tree, error) {
	o := applyOptions(opts)

	nodes := []Node{{ID: 0, Name: "root", Parent: domain.NoParent, Prob: 1, Payload: spec.Root.Clone()}}
	frontier := []domain.NodeID{0}

	for s, st := range spec.Stages {
		if st.Branch == nil {
			return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: fmt.Sprintf("stage %d has no branch function", s)}
		}
		var next []domain.NodeID
		for _, pid := range frontier {
			if st.Branches <= 0 {
				return nil, &domain.MalformedTreeError{Node: pid, Reason: fmt.Sprintf("stage %d produces no children", s)}
			}
			for k := range st.Branches {
				parent := nodes[pid]
				prob, payload := st.Branch(&parent, k)
				id := domain.NodeID(len(nodes))
				nodes = append(nodes, Node{
					ID:      id,
					Name:    fmt.Sprintf("%s_%d", parent.Name, k),
					Stage:   s + 1,
					Prob:    prob,
					Parent:  pid,
					Payload: payload.Clone(),
				})
				nodes[pid].Children = append(nodes[pid].Children, id)
				next = append(next, id)
			}
		}
		frontier = next
	}

	return newTree(nodes, o.tolerance)
}

// Deterministic returns a root with a single certain leaf carrying payload. Solved
// with recourse off it is the single-scenario program.
func Deterministic(payload domain.Payload) *Tree {
	t, err := Chain(payload)
	if err != nil {
		panic(err)
	}
	return t
}

// Chain returns a root followed by one certain node per payload. It is the
// multi-stage deterministic program.
func Chain(payloads ...domain.Payload) (*Tree, error) {
	if len(payloads) == 0 {
		return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: "chain needs at least one stage"}
	}
	b := NewBuilder(payloads[0])
	parent := b.Root()
	for i, p := range payloads {
		parent = b.Child(parent, fmt.Sprintf("t%d", i+1), 1, p)
	}
	return b.Build()
}

// ExpectedValuePath collapses every stage into its probability-weighted mean payload
// and returns the resulting chain. It is the expected-value deterministic problem.
func ExpectedValuePath(t *Tree) (*Tree, error) {
	depth := t.Depth()
	if depth == 0 {
		return nil, &domain.MalformedTreeError{Node: 0, Reason: "tree has no stage after the root"}
	}
	b := NewBuilder(t.Root().Payload)
	parent := b.Root()
	for s := 1; s <= depth; s++ {
		nodes := t.Stage(s)
		weights := make([]float64, len(nodes))
		payloads := make([]domain.Payload, len(nodes))
		for i, n := range nodes {
			weights[i] = t.MustUnconditional(n.ID)
			payloads[i] = n.Payload
		}
		parent = b.Child(parent, fmt.Sprintf("ev%d", s), 1, meanPayload(payloads, weights))
	}
	return b.Build()
}

// meanPayload averages each key over the payloads that define it, renormalizing the weights.
func meanPayload(payloads []domain.Payload, weights []float64) domain.Payload {
	sums := make(map[string]float64)
	mass := make(map[string]float64)
	for i, p := range payloads {
		for k, v := range p {
			sums[k] += weights[i] * v
			mass[k] += weights[i]
		}
	}
	out := make(domain.Payload, len(sums))
	for k, s := range sums {
		if mass[k] > 0 {
			out[k] = s / mass[k]
		}
	}
	return out
}

// ScenarioPath returns the deterministic chain that follows the root-to-leaf path of
// leaf, keeping the original node names. Solving it is the perfect-information
// problem of that scenario.
func ScenarioPath(t *Tree, leaf domain.NodeID) (*Tree, error) {
	n, err := t.Node(leaf)
	if err != nil {
		return nil, err
	}
	if !n.IsLeaf() {
		return nil, &domain.MalformedTreeError{Node: leaf, Reason: "not a leaf"}
	}
	path, err := t.PathToRoot(leaf)
	if err != nil {
		return nil, err
	}
	b := NewBuilder(path[0].Payload)
	parent := b.Root()
	for _, node := range path[1:] {
		parent = b.Child(parent, node.Name, 1, node.Payload)
	}
	return b.Build()
}
