package domain

import (
	"maps"
	"time"
)

// Status is the outcome class of a solve.
type Status string

const (
	StatusOptimal       Status = "optimal"
	StatusInfeasible    Status = "infeasible"
	StatusUnbounded     Status = "unbounded"
	StatusSolverFailure Status = "solver_failure"
)

// Formulation selects how non-anticipativity is expressed.
type Formulation string

const (
	// FormulationNode declares decisions once per node; sharing is structural.
	FormulationNode Formulation = "node"
	// FormulationScenario declares decisions per scenario and ties copies with equality rows.
	FormulationScenario Formulation = "scenario"
)

// DecisionBundle holds the solved values of one node, or of one scenario copy of a node.
// Bundles are built once by the solver adapter and never modified afterwards.
type DecisionBundle struct {
	Node NodeID `json:"node"`
	// Scenario is the leaf of the scenario copy, or NoScenario for node-based bundles.
	Scenario NodeID `json:"scenario"`
	Stage    int    `json:"stage"`

	Purchase   map[string]float64 `json:"purchase,omitempty"`
	Spot       map[string]float64 `json:"spot,omitempty"`
	Run        map[string]float64 `json:"run,omitempty"` // keyed by "input/process"
	Throughput map[string]float64 `json:"throughput,omitempty"`
	Output     map[string]float64 `json:"output,omitempty"`
	Sold       map[string]float64 `json:"sold,omitempty"`
	Excess     map[string]float64 `json:"excess,omitempty"`
	// LostSales is the bounded demand left unserved at this node.
	LostSales map[string]float64 `json:"lost_sales,omitempty"`

	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
}

// Contribution is revenue minus cost at the node, not weighted by probability.
func (b *DecisionBundle) Contribution() float64 {
	return b.Revenue - b.Cost
}

// Clone returns a deep copy.
func (b *DecisionBundle) Clone() *DecisionBundle {
	if b == nil {
		return nil
	}
	c := *b
	c.Purchase = maps.Clone(b.Purchase)
	c.Spot = maps.Clone(b.Spot)
	c.Run = maps.Clone(b.Run)
	c.Throughput = maps.Clone(b.Throughput)
	c.Output = maps.Clone(b.Output)
	c.Sold = maps.Clone(b.Sold)
	c.Excess = maps.Clone(b.Excess)
	c.LostSales = maps.Clone(b.LostSales)
	return &c
}

// SolveResult is the immutable product of one solve.
type SolveResult struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	Objective   float64     `json:"objective"`
	Formulation Formulation `json:"formulation"`
	// Bundles holds one bundle per tree node.
	Bundles map[NodeID]*DecisionBundle `json:"bundles,omitempty"`
	// ScenarioBundles holds every scenario copy (scenario formulation only).
	ScenarioBundles []*DecisionBundle  `json:"scenario_bundles,omitempty"`
	Duals           map[string]float64 `json:"duals,omitempty"`
	Diagnostic      string             `json:"diagnostic,omitempty"`
	Backend         string             `json:"backend"`
	Elapsed         time.Duration      `json:"elapsed"`
	Variables       int                `json:"variables"`
	Constraints     int                `json:"constraints"`
}

// Optimal reports whether the solve reached an optimum.
func (r *SolveResult) Optimal() bool {
	return r != nil && r.Status == StatusOptimal
}

// Clone returns a deep copy.
func (r *SolveResult) Clone() *SolveResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Bundles != nil {
		c.Bundles = make(map[NodeID]*DecisionBundle, len(r.Bundles))
		for id, b := range r.Bundles {
			c.Bundles[id] = b.Clone()
		}
	}
	if r.ScenarioBundles != nil {
		c.ScenarioBundles = make([]*DecisionBundle, len(r.ScenarioBundles))
		for i, b := range r.ScenarioBundles {
			c.ScenarioBundles[i] = b.Clone()
		}
	}
	c.Duals = maps.Clone(r.Duals)
	return &c
}
