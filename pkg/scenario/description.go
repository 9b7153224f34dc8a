package scenario

import (
	"fmt"

	"github.com/aretw0/plantopt/pkg/domain"
)

// NodeSpec declares one node of an explicit tree. The root is the node without a parent.
type NodeSpec struct {
	Name    string         `json:"name" yaml:"name"`
	Parent  string         `json:"parent,omitempty" yaml:"parent,omitempty"`
	Prob    float64        `json:"prob" yaml:"prob"`
	Payload domain.Payload `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Description is the serializable form of a tree: either explicit nodes or a random walk.
type Description struct {
	Nodes      []NodeSpec      `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	RandomWalk *RandomWalkSpec `json:"random_walk,omitempty" yaml:"random_walk,omitempty"`
}

// Build turns the description into a validated tree. Parents must be declared
// before their children.
func (d Description) Build(opts ...Option) (*Tree, error) {
	switch {
	case d.RandomWalk != nil && len(d.Nodes) > 0:
		return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: "declare either nodes or random_walk, not both"}
	case d.RandomWalk != nil:
		return RandomWalk(*d.RandomWalk, opts...)
	case len(d.Nodes) == 0:
		return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: "tree description is empty"}
	}

	root := d.Nodes[0]
	if root.Parent != "" {
		return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: fmt.Sprintf("first node %q must be the root", root.Name)}
	}
	b := NewBuilder(root.Payload)
	ids := map[string]domain.NodeID{root.Name: b.Root()}
	if root.Name != "" {
		b.nodes[0].Name = root.Name
	}

	for _, ns := range d.Nodes[1:] {
		if ns.Parent == "" {
			return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: fmt.Sprintf("node %q: only the first node may be a root", ns.Name)}
		}
		pid, ok := ids[ns.Parent]
		if !ok {
			return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: fmt.Sprintf("node %q: parent %q is not declared before it", ns.Name, ns.Parent)}
		}
		if _, dup := ids[ns.Name]; dup && ns.Name != "" {
			return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: fmt.Sprintf("duplicate node %q", ns.Name)}
		}
		id := b.Child(pid, ns.Name, ns.Prob, ns.Payload)
		ids[b.nodes[id].Name] = id
	}
	return b.Build(opts...)
}

// Describe returns the explicit description of t.
func Describe(t *Tree) Description {
	var d Description
	for _, n := range t.BFS() {
		ns := NodeSpec{Name: n.Name, Prob: n.Prob, Payload: n.Payload.Clone()}
		if !n.IsRoot() {
			ns.Parent = t.nodes[n.Parent].Name
		}
		d.Nodes = append(d.Nodes, ns)
	}
	return d
}
