package coupling

import (
	"fmt"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/aretw0/plantopt/pkg/stage"
)

// Assembly is a complete program together with the handles needed to read a
// solution back onto the tree.
type Assembly struct {
	Tree        *scenario.Tree
	Spec        *domain.ResourceSpec
	Config      domain.ModelConfig
	Program     *lp.Program
	Nodes       map[stage.Key]*stage.NodeVars
	Order       []stage.Key // build order
	Couplings   []Constraint
	Formulation domain.Formulation
}

// WithProgram returns a shallow copy of the assembly over p. Extensions only ever
// append to a program, so the node handles stay valid.
func (a *Assembly) WithProgram(p *lp.Program) *Assembly {
	c := *a
	c.Program = p
	return &c
}

// RootKey is the key of the single root model.
func RootKey() stage.Key {
	return stage.Key{Node: 0, Copy: domain.NoScenario}
}

// Assemble builds every node model of tree and couples them according to cfg.
func Assemble(tree *scenario.Tree, spec *domain.ResourceSpec, cfg domain.ModelConfig) (*Assembly, error) {
	if cfg.Formulation == "" {
		cfg.Formulation = domain.FormulationNode
	}
	sb, err := stage.NewBuilder(spec, cfg)
	if err != nil {
		return nil, err
	}

	prog := lp.NewBuilder()
	asm := &Assembly{
		Tree:        tree,
		Spec:        spec,
		Config:      cfg,
		Nodes:       make(map[stage.Key]*stage.NodeVars),
		Formulation: cfg.Formulation,
	}
	build := func(n *scenario.Node, key stage.Key, weight float64, parent *stage.NodeVars) error {
		nv, err := sb.BuildNode(prog, n, key, weight, parent)
		if err != nil {
			return err
		}
		asm.Nodes[key] = nv
		asm.Order = append(asm.Order, key)
		return nil
	}

	root := tree.Root()
	if err := build(root, RootKey(), 1, nil); err != nil {
		return nil, err
	}

	switch cfg.Formulation {
	case domain.FormulationNode:
		for _, n := range tree.BFS()[1:] {
			key := stage.Key{Node: n.ID, Copy: domain.NoScenario}
			parent := asm.Nodes[stage.Key{Node: n.Parent, Copy: domain.NoScenario}]
			if err := build(n, key, tree.MustUnconditional(n.ID), parent); err != nil {
				return nil, err
			}
		}
	case domain.FormulationScenario:
		for _, s := range tree.Scenarios() {
			parent := asm.Nodes[RootKey()]
			for _, id := range s.Path[1:] {
				key := stage.Key{Node: id, Copy: s.Leaf}
				if err := build(tree.MustNode(id), key, s.Prob, parent); err != nil {
					return nil, err
				}
				parent = asm.Nodes[key]
			}
		}
	default:
		return nil, fmt.Errorf("formulation %q: %w", cfg.Formulation, domain.ErrInvalidSpec)
	}

	couplings, err := Couple(tree, asm.Nodes, cfg.Formulation)
	if err != nil {
		return nil, err
	}
	for _, c := range couplings {
		for i, pair := range c.Pairs {
			name := fmt.Sprintf("na[n%d,%d]", c.Node, i)
			tag := lp.Tag{Family: FamilyNonAnticipativity, Node: c.Node, Copy: domain.NoScenario}
			prog.AddRow(name, tag, lp.EQ, 0, lp.T(pair[0], 1), lp.T(pair[1], -1))
		}
	}
	asm.Couplings = couplings

	p, err := prog.Build()
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	asm.Program = p
	return asm, nil
}
