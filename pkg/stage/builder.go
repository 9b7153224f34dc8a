// Package stage declares the decision variables and local constraints of one
// scenario-tree node.
//
// Planning decisions (feedstock purchases) are taken at every node that has children
// and consumed by those children. Operating decisions (runs, output, sales) are taken at
// every non-root node once its realization is known, together with optional spot
// purchases that act as recourse.
package stage

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// Row families attached to lp.Tag.Family.
const (
	FamilyBalance    = "balance"
	FamilyProduction = "production"
	FamilySplit      = "split"
	FamilyDemand     = "demand"
	FamilyCapacity   = "capacity"
	FamilyService    = "service"
	FamilyRamp       = "ramp"
)

// Key identifies a node model: a tree node, optionally one scenario copy of it.
type Key struct {
	Node domain.NodeID
	Copy domain.NodeID // leaf of the scenario copy, or domain.NoScenario
}

func (k Key) String() string {
	if k.Copy == domain.NoScenario {
		return fmt.Sprintf("n%d", k.Node)
	}
	return fmt.Sprintf("n%ds%d", k.Node, k.Copy)
}

// NodeVars holds the variable handles of one node model and the parameters that
// were in force when it was built.
type NodeVars struct {
	Key    Key
	Stage  int
	Weight float64 // objective weight: probability of the node or of the scenario copy

	Purchase map[string]lp.Var // only at nodes with children
	Spot     map[string]lp.Var
	Run      map[domain.Route]lp.Var
	Output   map[string]lp.Var
	Sold     map[string]lp.Var
	Excess   map[string]lp.Var

	Price    map[string]float64
	Cost     map[string]float64
	SpotCost map[string]float64
	// Demand holds the bounded demands only.
	Demand map[string]float64
}

// Decisions returns every decision variable of the node in a stable order:
// purchases, spot buys, runs, outputs, sales and excess, each sorted by name.
func (nv *NodeVars) Decisions() []lp.Var {
	var out []lp.Var
	for _, m := range []map[string]lp.Var{nv.Purchase, nv.Spot} {
		out = appendSorted(out, m)
	}
	routes := make([]domain.Route, 0, len(nv.Run))
	for r := range nv.Run {
		routes = append(routes, r)
	}
	slices.SortFunc(routes, func(a, b domain.Route) int {
		if c := cmp.Compare(a.Input, b.Input); c != 0 {
			return c
		}
		return cmp.Compare(a.Process, b.Process)
	})
	for _, r := range routes {
		out = append(out, nv.Run[r])
	}
	for _, m := range []map[string]lp.Var{nv.Output, nv.Sold, nv.Excess} {
		out = appendSorted(out, m)
	}
	return out
}

func appendSorted(out []lp.Var, m map[string]lp.Var) []lp.Var {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Builder declares node models for one resource spec and model configuration.
type Builder struct {
	spec   *domain.ResourceSpec
	cfg    domain.ModelConfig
	routes []domain.Route
}

// NewBuilder validates spec and prepares a builder.
func NewBuilder(spec *domain.ResourceSpec, cfg domain.ModelConfig) (*Builder, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("resource spec: %w", err)
	}
	return &Builder{spec: spec, cfg: cfg, routes: spec.Routes()}, nil
}

// BuildNode declares the variables and local rows of node under key. parent is the
// model of the parent node in the same copy, nil at the root.
func (b *Builder) BuildNode(prog *lp.Builder, node *scenario.Node, key Key, weight float64, parent *NodeVars) (*NodeVars, error) {
	if node.IsRoot() != (parent == nil) {
		return nil, fmt.Errorf("node %s: parent model mismatch", key)
	}
	label := key.String()
	nv := &NodeVars{
		Key:      key,
		Stage:    node.Stage,
		Weight:   weight,
		Purchase: make(map[string]lp.Var),
		Spot:     make(map[string]lp.Var),
		Run:      make(map[domain.Route]lp.Var),
		Output:   make(map[string]lp.Var),
		Sold:     make(map[string]lp.Var),
		Excess:   make(map[string]lp.Var),
		Price:    make(map[string]float64),
		Cost:     make(map[string]float64),
		SpotCost: make(map[string]float64),
		Demand:   make(map[string]float64),
	}
	tag := func(family, target string) lp.Tag {
		return lp.Tag{Family: family, Target: target, Node: key.Node, Copy: key.Copy}
	}
	name := func(kind, entity string) string {
		return fmt.Sprintf("%s[%s,%s]", kind, label, entity)
	}

	for _, in := range b.spec.Inputs {
		nv.Cost[in.Name] = param(node.Payload, domain.KeyCost, in.Name, in.UnitCost)
		if in.SpotCost != nil {
			nv.SpotCost[in.Name] = param(node.Payload, domain.KeySpot, in.Name, *in.SpotCost)
		}
	}
	for _, p := range b.spec.Products {
		nv.Price[p.Name] = param(node.Payload, domain.KeyPrice, p.Name, p.Price)
		if p.Demand != nil {
			nv.Demand[p.Name] = param(node.Payload, domain.KeyDemand, p.Name, *p.Demand)
		} else if d, ok := node.Payload.Lookup(domain.KeyDemand, p.Name); ok {
			nv.Demand[p.Name] = d
		}
	}

	if !node.IsLeaf() {
		for _, in := range b.spec.Inputs {
			upper := lp.Inf
			if in.Availability != nil {
				upper = *in.Availability
			}
			nv.Purchase[in.Name] = prog.AddVar(name("buy", in.Name), 0, upper, -weight*nv.Cost[in.Name])
		}
	}
	if node.IsRoot() {
		return nv, nil
	}

	for _, rt := range b.routes {
		nv.Run[rt] = prog.AddVar(name("run", rt.String()), 0, lp.Inf, 0)
	}
	if b.cfg.Recourse {
		for _, in := range b.spec.Inputs {
			if c, ok := nv.SpotCost[in.Name]; ok {
				nv.Spot[in.Name] = prog.AddVar(name("spot", in.Name), 0, lp.Inf, -weight*c)
			}
		}
	}
	for _, p := range b.spec.Products {
		nv.Output[p.Name] = prog.AddVar(name("out", p.Name), 0, lp.Inf, 0)
		nv.Sold[p.Name] = prog.AddVar(name("sold", p.Name), 0, lp.Inf, weight*nv.Price[p.Name])
		nv.Excess[p.Name] = prog.AddVar(name("excess", p.Name), 0, lp.Inf, 0)
	}

	// feedstock consumed here was bought at the parent, plus any spot purchase
	for _, in := range b.spec.Inputs {
		terms := []lp.Term{lp.T(parent.Purchase[in.Name], -1)}
		for _, rt := range b.routes {
			if rt.Input == in.Name {
				terms = append(terms, lp.T(nv.Run[rt], 1))
			}
		}
		if v, ok := nv.Spot[in.Name]; ok {
			terms = append(terms, lp.T(v, -1))
		}
		prog.AddRow(name("bal", in.Name), tag(FamilyBalance, in.Name), lp.EQ, 0, terms...)
	}

	for _, p := range b.spec.Products {
		terms := []lp.Term{lp.T(nv.Output[p.Name], 1)}
		for _, rt := range b.routes {
			if y := b.spec.YieldOf(rt, p.Name); y != 0 {
				terms = append(terms, lp.T(nv.Run[rt], -y))
			}
		}
		prog.AddRow(name("prod", p.Name), tag(FamilyProduction, p.Name), lp.EQ, 0, terms...)
		prog.AddRow(name("split", p.Name), tag(FamilySplit, p.Name), lp.EQ, 0,
			lp.T(nv.Sold[p.Name], 1), lp.T(nv.Excess[p.Name], 1), lp.T(nv.Output[p.Name], -1))

		if d, ok := nv.Demand[p.Name]; ok {
			prog.AddRow(name("dem", p.Name), tag(FamilyDemand, p.Name), lp.LE, d, lp.T(nv.Sold[p.Name], 1))
			if p.MustServe {
				prog.AddRow(name("svc", p.Name), tag(FamilyService, p.Name), lp.GE, d, lp.T(nv.Output[p.Name], 1))
			}
		}

		if b.spec.RampLimit != nil && parent.Stage > 0 {
			r := *b.spec.RampLimit
			diff := []lp.Term{lp.T(nv.Output[p.Name], 1), lp.T(parent.Output[p.Name], -1)}
			prog.AddRow(name("rampup", p.Name), tag(FamilyRamp, p.Name), lp.LE, r, diff...)
			prog.AddRow(name("rampdn", p.Name), tag(FamilyRamp, p.Name), lp.GE, -r, diff...)
		}
	}

	for _, proc := range b.spec.Processes {
		var terms []lp.Term
		for _, rt := range b.routes {
			if rt.Process == proc.Name {
				terms = append(terms, lp.T(nv.Run[rt], 1))
			}
		}
		capacity := param(node.Payload, domain.KeyCapacity, proc.Name, proc.Capacity)
		prog.AddRow(name("cap", proc.Name), tag(FamilyCapacity, proc.Name), lp.LE, capacity, terms...)
	}

	return nv, nil
}

// param returns the payload override of kind.name, or def.
func param(p domain.Payload, kind, name string, def float64) float64 {
	if v, ok := p.Lookup(kind, name); ok {
		return v
	}
	return def
}
