// Package lp is a small typed builder for linear programs.
//
// Variables and rows are referenced through handles returned at declaration time and
// the program is validated when it is built, before any solver sees it. The objective
// is always maximized.
package lp

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/aretw0/plantopt/pkg/domain"
)

// Inf is an infinite bound.
var Inf = math.Inf(1)

// Var is a handle to a declared variable.
type Var int

// Row is a handle to a declared constraint.
type Row int

// Sense is the relation of a constraint row.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "="
	}
	return "?"
}

// Term is coef·var.
type Term struct {
	Var  Var
	Coef float64
}

// T is shorthand for Term{v, c}.
func T(v Var, c float64) Term { return Term{Var: v, Coef: c} }

// Tag classifies a row so that extensions can select it later.
type Tag struct {
	Family string // e.g. "capacity", "balance", "nonanticipativity"
	Target string // entity name, e.g. process or product
	Node   domain.NodeID
	Copy   domain.NodeID // scenario copy, domain.NoScenario for node-based rows
}

// Variable is a declared column.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
	Obj   float64
}

// Constraint is a declared row.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
	Tag   Tag
}

// Program is an immutable, validated linear program.
type Program struct {
	vars []Variable
	rows []Constraint
}

// NumVars returns the number of columns.
func (p *Program) NumVars() int { return len(p.vars) }

// NumRows returns the number of constraints.
func (p *Program) NumRows() int { return len(p.rows) }

// Variable returns the declaration of v.
func (p *Program) Variable(v Var) Variable { return p.vars[v] }

// Constraint returns a copy of the declaration of r.
func (p *Program) Constraint(r Row) Constraint {
	c := p.rows[r]
	c.Terms = slices.Clone(c.Terms)
	return c
}

// Variables returns a copy of all columns.
func (p *Program) Variables() []Variable { return slices.Clone(p.vars) }

// Select returns the rows whose tag satisfies match, in declaration order.
func (p *Program) Select(match func(Tag) bool) []Row {
	var rows []Row
	for i, c := range p.rows {
		if match(c.Tag) {
			rows = append(rows, Row(i))
		}
	}
	return rows
}

// Objective evaluates the objective at x.
func (p *Program) Objective(x []float64) float64 {
	total := 0.0
	for i, v := range p.vars {
		total += v.Obj * x[i]
	}
	return total
}

// Activity evaluates the left-hand side of r at x.
func (p *Program) Activity(r Row, x []float64) float64 {
	total := 0.0
	for _, t := range p.rows[r].Terms {
		total += t.Coef * x[t.Var]
	}
	return total
}

// Extend returns a builder seeded with a copy of p. The program itself is not modified.
func (p *Program) Extend() *Builder {
	b := NewBuilder()
	b.vars = slices.Clone(p.vars)
	b.rows = make([]Constraint, len(p.rows))
	for i, c := range p.rows {
		c.Terms = slices.Clone(c.Terms)
		b.rows[i] = c
	}
	for _, v := range b.vars {
		b.varNames[v.Name] = true
	}
	for _, c := range b.rows {
		b.rowNames[c.Name] = true
	}
	return b
}

// Solution is what a backend returns for a program.
type Solution struct {
	Status    domain.Status
	Objective float64
	X         []float64 // one value per variable
	Duals     []float64 // one value per row, nil when not requested
	// Diagnostic carries backend output useful to explain a failure.
	Diagnostic string
}

// Builder accumulates variables and rows. Declaration errors are recorded and reported
// by Build.
type Builder struct {
	vars     []Variable
	rows     []Constraint
	varNames map[string]bool
	rowNames map[string]bool
	errs     []error
}

// NewBuilder creates an empty program builder.
func NewBuilder() *Builder {
	return &Builder{
		varNames: make(map[string]bool),
		rowNames: make(map[string]bool),
	}
}

// AddVar declares a column with bounds [lower, upper] and objective coefficient obj.
func (b *Builder) AddVar(name string, lower, upper, obj float64) Var {
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("variable with empty name"))
	case b.varNames[name]:
		b.errs = append(b.errs, fmt.Errorf("duplicate variable %q", name))
	case math.IsNaN(lower) || math.IsNaN(upper) || math.IsNaN(obj) || math.IsInf(obj, 0):
		b.errs = append(b.errs, fmt.Errorf("variable %q: invalid bound or cost", name))
	case lower > upper:
		b.errs = append(b.errs, fmt.Errorf("variable %q: lower bound %g above upper bound %g", name, lower, upper))
	}
	b.varNames[name] = true
	b.vars = append(b.vars, Variable{Name: name, Lower: lower, Upper: upper, Obj: obj})
	return Var(len(b.vars) - 1)
}

// AddObj adds c to the objective coefficient of v.
func (b *Builder) AddObj(v Var, c float64) {
	if !b.validVar(v) {
		b.errs = append(b.errs, fmt.Errorf("objective references unknown variable %d", v))
		return
	}
	b.vars[v].Obj += c
}

// SetUpper tightens the upper bound of v.
func (b *Builder) SetUpper(v Var, upper float64) {
	if !b.validVar(v) {
		b.errs = append(b.errs, fmt.Errorf("bound references unknown variable %d", v))
		return
	}
	b.vars[v].Upper = upper
}

// AddRow declares a constraint Σ terms (sense) rhs.
func (b *Builder) AddRow(name string, tag Tag, sense Sense, rhs float64, terms ...Term) Row {
	b.checkRow(name, rhs, terms)
	if b.rowNames[name] {
		b.errs = append(b.errs, fmt.Errorf("duplicate row %q", name))
	}
	b.rowNames[name] = true
	b.rows = append(b.rows, Constraint{
		Name:  name,
		Terms: slices.Clone(terms),
		Sense: sense,
		RHS:   rhs,
		Tag:   tag,
	})
	return Row(len(b.rows) - 1)
}

// Replace overwrites the body of an existing row, keeping its name.
func (b *Builder) Replace(r Row, sense Sense, rhs float64, terms ...Term) {
	if int(r) < 0 || int(r) >= len(b.rows) {
		b.errs = append(b.errs, fmt.Errorf("unknown row %d", r))
		return
	}
	b.checkRow(b.rows[r].Name, rhs, terms)
	b.rows[r].Sense = sense
	b.rows[r].RHS = rhs
	b.rows[r].Terms = slices.Clone(terms)
}

// Constraint returns a copy of a declared row.
func (b *Builder) Constraint(r Row) Constraint {
	c := b.rows[r]
	c.Terms = slices.Clone(c.Terms)
	return c
}

// Build validates and freezes the program.
func (b *Builder) Build() (*Program, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("invalid program: %w", errors.Join(b.errs...))
	}
	p := &Program{vars: slices.Clone(b.vars), rows: make([]Constraint, len(b.rows))}
	for i, c := range b.rows {
		c.Terms = slices.Clone(c.Terms)
		p.rows[i] = c
	}
	return p, nil
}

func (b *Builder) validVar(v Var) bool {
	return int(v) >= 0 && int(v) < len(b.vars)
}

func (b *Builder) checkRow(name string, rhs float64, terms []Term) {
	if name == "" {
		b.errs = append(b.errs, errors.New("row with empty name"))
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		b.errs = append(b.errs, fmt.Errorf("row %q: invalid right-hand side %g", name, rhs))
	}
	for _, t := range terms {
		if !b.validVar(t.Var) {
			b.errs = append(b.errs, fmt.Errorf("row %q references unknown variable %d", name, t.Var))
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			b.errs = append(b.errs, fmt.Errorf("row %q: invalid coefficient %g", name, t.Coef))
		}
	}
}
