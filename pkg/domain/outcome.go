package domain

import (
	"slices"
	"time"
)

// ScenarioValue is the realized value of one root-to-leaf scenario.
type ScenarioValue struct {
	Leaf      NodeID  `json:"leaf"`
	Name      string  `json:"name"`
	Prob      float64 `json:"prob"`
	Value     float64 `json:"value"`
	LostSales float64 `json:"lost_sales"`
	Excess    float64 `json:"excess"`
}

// Distribution summarizes scenario values.
type Distribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	// Level is the tail probability used for VaR and CVaR.
	Level float64 `json:"level"`
	// VaR is the Level-quantile of the scenario values.
	VaR float64 `json:"var"`
	// CVaR is the expected value over the worst Level tail.
	CVaR float64 `json:"cvar"`
}

// Outcome is the reporting contract of a solve.
type Outcome struct {
	ResultID          string          `json:"result_id"`
	Status            Status          `json:"status"`
	ExpectedObjective float64         `json:"expected_objective"`
	Scenarios         []ScenarioValue `json:"scenarios,omitempty"`
	Distribution      *Distribution   `json:"distribution,omitempty"`
	// Root holds the first-stage decisions, the implementable plan.
	Root *DecisionBundle `json:"root,omitempty"`
	// VSS is the value of the stochastic solution (expected minus EEV), when a baseline is known.
	VSS *float64 `json:"vss,omitempty"`
	// EVPI is the expected value of perfect information (wait-and-see minus expected).
	EVPI *float64 `json:"evpi,omitempty"`
}

// RunRecord is an archived solve with its outcome.
type RunRecord struct {
	ID        string       `json:"id"`
	Label     string       `json:"label,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Result    *SolveResult `json:"result"`
	Outcome   *Outcome     `json:"outcome,omitempty"`
	// Sealed holds Result and Outcome encrypted when the store encrypts records at rest.
	Sealed []byte `json:"sealed,omitempty"`
}

// Clone returns a deep copy.
func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	c.Scenarios = slices.Clone(o.Scenarios)
	if o.Distribution != nil {
		d := *o.Distribution
		c.Distribution = &d
	}
	c.Root = o.Root.Clone()
	if o.VSS != nil {
		v := *o.VSS
		c.VSS = &v
	}
	if o.EVPI != nil {
		v := *o.EVPI
		c.EVPI = &v
	}
	return &c
}

// Clone returns a deep copy.
func (r *RunRecord) Clone() *RunRecord {
	c := *r
	c.Result = r.Result.Clone()
	c.Outcome = r.Outcome.Clone()
	c.Sealed = slices.Clone(r.Sealed)
	return &c
}
