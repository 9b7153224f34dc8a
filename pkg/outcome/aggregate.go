// Package outcome turns solved decision bundles into the reporting contract: expected
// objective, realized value per scenario, distribution summaries and the value of the
// stochastic solution.
package outcome

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// DefaultLevel is the tail probability of the reported VaR and CVaR.
const DefaultLevel = 0.05

type options struct {
	baseline *domain.SolveResult
	waitSee  *float64
	level    float64
}

// Option configures Aggregate.
type Option func(*options)

// WithBaseline supplies the expected result of the expected-value plan (EEV), solved
// on the same tree. The outcome then reports VSS = expected − EEV.
func WithBaseline(eev *domain.SolveResult) Option {
	return func(o *options) {
		o.baseline = eev
	}
}

// WithWaitAndSee supplies the probability-weighted value of the perfect-information
// solves. The outcome then reports EVPI = wait-and-see − expected.
func WithWaitAndSee(value float64) Option {
	return func(o *options) {
		o.waitSee = &value
	}
}

// WithLevel sets the tail probability used for VaR and CVaR.
func WithLevel(level float64) Option {
	return func(o *options) {
		o.level = level
	}
}

// Aggregate computes the outcome of res over tree. A result that is not optimal yields
// an outcome carrying only its status.
func Aggregate(tree *scenario.Tree, res *domain.SolveResult, opts ...Option) (*domain.Outcome, error) {
	if tree == nil || res == nil {
		return nil, errors.New("aggregate: tree and result are required")
	}
	o := options{level: DefaultLevel}
	for _, opt := range opts {
		opt(&o)
	}
	if !(o.level > 0 && o.level < 1) {
		return nil, fmt.Errorf("aggregate: level %g outside (0, 1): %w", o.level, domain.ErrInvalidSpec)
	}

	out := &domain.Outcome{ResultID: res.ID, Status: res.Status}
	if !res.Optimal() {
		return out, nil
	}

	values, err := scenarioValues(tree, res)
	if err != nil {
		return nil, err
	}
	out.Scenarios = values
	for _, v := range values {
		out.ExpectedObjective += v.Prob * v.Value
	}
	out.Distribution = distribution(values, o.level)
	if root, ok := res.Bundles[tree.Root().ID]; ok {
		out.Root = root.Clone()
	}

	if o.baseline != nil && o.baseline.Optimal() {
		base, err := scenarioValues(tree, o.baseline)
		if err != nil {
			return nil, fmt.Errorf("aggregate baseline: %w", err)
		}
		eev := 0.0
		for _, v := range base {
			eev += v.Prob * v.Value
		}
		vss := out.ExpectedObjective - eev
		out.VSS = &vss
	}
	if o.waitSee != nil {
		evpi := *o.waitSee - out.ExpectedObjective
		out.EVPI = &evpi
	}
	return out, nil
}

// Expected returns Σ P(leaf)·(path contributions) of an optimal result.
func Expected(tree *scenario.Tree, res *domain.SolveResult) (float64, error) {
	if !res.Optimal() {
		return 0, fmt.Errorf("result %s is %s", res.ID, res.Status)
	}
	values, err := scenarioValues(tree, res)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, v := range values {
		total += v.Prob * v.Value
	}
	return total, nil
}

// scenarioValues sums the bundles along every root-to-leaf path. Scenario copies are
// preferred over the per-node view when the result has them.
func scenarioValues(tree *scenario.Tree, res *domain.SolveResult) ([]domain.ScenarioValue, error) {
	copies := make(map[[2]domain.NodeID]*domain.DecisionBundle, len(res.ScenarioBundles))
	for _, b := range res.ScenarioBundles {
		copies[[2]domain.NodeID{b.Node, b.Scenario}] = b
	}

	var out []domain.ScenarioValue
	for _, sc := range tree.Scenarios() {
		v := domain.ScenarioValue{Leaf: sc.Leaf, Name: tree.MustNode(sc.Leaf).Name, Prob: sc.Prob}
		for _, id := range sc.Path {
			b, ok := copies[[2]domain.NodeID{id, sc.Leaf}]
			if !ok {
				b, ok = res.Bundles[id]
			}
			if !ok {
				return nil, fmt.Errorf("result %s has no decisions for node %d", res.ID, id)
			}
			v.Value += b.Contribution()
			v.LostSales += sum(b.LostSales)
			v.Excess += sum(b.Excess)
		}
		out = append(out, v)
	}
	return out, nil
}

func distribution(values []domain.ScenarioValue, level float64) *domain.Distribution {
	x := make([]float64, len(values))
	w := make([]float64, len(values))
	for i, v := range values {
		x[i], w[i] = v.Value, v.Prob
	}
	stat.SortWeighted(x, w)

	mean, variance := stat.PopMeanVariance(x, w)
	d := &domain.Distribution{
		Min:    x[0],
		Max:    x[len(x)-1],
		Mean:   mean,
		StdDev: math.Sqrt(math.Max(0, variance)),
		Level:  level,
		VaR:    stat.Quantile(level, stat.Empirical, x, w),
	}

	// Profit is maximized, so the tail of interest is the lower one.
	mass, acc := 0.0, 0.0
	total := floats.Sum(w)
	for i := range x {
		if mass >= level {
			break
		}
		p := w[i] / total
		if p <= 0 {
			continue
		}
		take := math.Min(p, level-mass)
		acc += take * x[i]
		mass += take
	}
	d.CVaR = d.VaR
	if mass > 0 {
		d.CVaR = acc / mass
	}
	return d
}

func sum(m map[string]float64) float64 {
	total := 0.0
	for _, k := range slices.Sorted(maps.Keys(m)) {
		total += m[k]
	}
	return total
}
