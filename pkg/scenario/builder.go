package scenario

import (
	"fmt"

	"github.com/aretw0/plantopt/pkg/domain"
)

// Builder assembles a tree node by node.
//
//	b := scenario.NewBuilder(domain.Payload{"demand.fuel": 100})
//	b.Child(b.Root(), "low", 0.5, domain.Payload{"demand.fuel": 80})
//	b.Child(b.Root(), "high", 0.5, domain.Payload{"demand.fuel": 120})
//	tree, err := b.Build()
type Builder struct {
	nodes []Node
	errs  []error
}

// NewBuilder starts a tree whose root carries payload.
func NewBuilder(root domain.Payload) *Builder {
	return &Builder{
		nodes: []Node{{ID: 0, Name: "root", Parent: domain.NoParent, Prob: 1, Payload: root.Clone()}},
	}
}

// Root returns the identifier of the root node.
func (b *Builder) Root() domain.NodeID { return 0 }

// Child adds a node below parent. An empty name defaults to "<parent>_<k>".
func (b *Builder) Child(parent domain.NodeID, name string, prob float64, payload domain.Payload) domain.NodeID {
	if int(parent) < 0 || int(parent) >= len(b.nodes) {
		b.errs = append(b.errs, &domain.MalformedTreeError{Node: parent, Reason: "unknown parent"})
		return domain.NoParent
	}
	p := &b.nodes[parent]
	if name == "" {
		name = fmt.Sprintf("%s_%d", p.Name, len(p.Children))
	}
	id := domain.NodeID(len(b.nodes))
	p.Children = append(p.Children, id)
	b.nodes = append(b.nodes, Node{
		ID:      id,
		Name:    name,
		Stage:   p.Stage + 1,
		Prob:    prob,
		Parent:  parent,
		Payload: payload.Clone(),
	})
	return id
}

// Build validates the tree exactly like Build does.
func (b *Builder) Build(opts ...Option) (*Tree, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	o := applyOptions(opts)
	nodes := make([]Node, len(b.nodes))
	for i, n := range b.nodes {
		n.Children = append([]domain.NodeID(nil), n.Children...)
		n.Payload = n.Payload.Clone()
		nodes[i] = n
	}
	return newTree(nodes, o.tolerance)
}
