// Package chance replaces hard inequality rows with probabilistic constraints over
// the scenario distribution, reformulated so that the program stays linear.
//
// The default reformulation is the sample-based conditional value-at-risk bound of
// Rockafellar and Uryasev: requiring CVaR_α(aᵀx − b) ≤ 0 over the nodes of a stage
// implies that the row is violated with probability at most α. A Gaussian
// reformulation fits b ~ N(μ, σ²) across the nodes and tightens every row to the
// α-quantile; it is convex only for α < 0.5. The exact value-at-risk form needs
// integer indicators and is rejected.
package chance

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aretw0/plantopt/pkg/coupling"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/stage"
)

// Risk names a reformulation.
type Risk string

const (
	RiskCVaR     Risk = "cvar"
	RiskGaussian Risk = "gaussian"
	RiskVaR      Risk = "var"
)

// FamilyChance tags the rows added by the CVaR reformulation.
const FamilyChance = "chance"

// Selector picks the hard rows to relax.
type Selector struct {
	Family string `json:"family" yaml:"family" mapstructure:"family"`
	// Target restricts the rows to one entity (process, product, input). Empty means all.
	Target string `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`
	// Stages restricts the rows to the listed stages. Empty means every stage.
	Stages []int `json:"stages,omitempty" yaml:"stages,omitempty" mapstructure:"stages"`
}

// Constraint is one chance constraint request.
type Constraint struct {
	Selector `yaml:",inline" mapstructure:",squash"`
	// Alpha is the tolerated violation probability, in (0, 1).
	Alpha float64 `json:"alpha" yaml:"alpha" mapstructure:"alpha"`
	Risk  Risk    `json:"risk,omitempty" yaml:"risk,omitempty" mapstructure:"risk"`
}

func (s Selector) matches(tag lp.Tag, st int) bool {
	if tag.Family != s.Family {
		return false
	}
	if s.Target != "" && tag.Target != s.Target {
		return false
	}
	return len(s.Stages) == 0 || slices.Contains(s.Stages, st)
}

type member struct {
	row    lp.Row
	sign   float64 // +1 for ≤ rows, -1 for ≥ rows: sign·aᵀx ≤ sign·b
	weight float64
}

type groupKey struct {
	stage  int
	target string
}

// Apply returns a new assembly in which the rows chosen by c.Selector hold with
// probability at least 1 − c.Alpha. The input assembly is not modified. All errors
// are reported before anything is solved.
func Apply(asm *coupling.Assembly, c Constraint) (*coupling.Assembly, error) {
	risk := c.Risk
	if risk == "" {
		risk = RiskCVaR
	}
	if !(c.Alpha > 0 && c.Alpha < 1) {
		return nil, fmt.Errorf("chance constraint on %q: alpha %g outside (0, 1): %w", c.Family, c.Alpha, domain.ErrInvalidSpec)
	}
	switch risk {
	case RiskCVaR:
	case RiskVaR:
		return nil, &domain.NonConvexReformulationError{
			Family: c.Family, Risk: string(risk),
			Reason: "exact scenario counting requires integer indicator variables",
		}
	case RiskGaussian:
		if c.Alpha >= 0.5 {
			return nil, &domain.NonConvexReformulationError{
				Family: c.Family, Risk: string(risk),
				Reason: fmt.Sprintf("the normal quantile is convex only for alpha < 0.5, got %g", c.Alpha),
			}
		}
	default:
		return nil, fmt.Errorf("unknown risk measure %q: %w", risk, domain.ErrInvalidSpec)
	}

	groups := make(map[groupKey][]member)
	for _, r := range asm.Program.Select(func(lp.Tag) bool { return true }) {
		con := asm.Program.Constraint(r)
		nv, ok := asm.Nodes[stage.Key{Node: con.Tag.Node, Copy: con.Tag.Copy}]
		if !ok || !c.matches(con.Tag, nv.Stage) {
			continue
		}
		m := member{row: r, sign: 1, weight: nv.Weight}
		switch con.Sense {
		case lp.GE:
			m.sign = -1
		case lp.EQ:
			return nil, &domain.NonConvexReformulationError{
				Family: c.Family, Risk: string(risk),
				Reason: fmt.Sprintf("row %s is an equality", con.Name),
			}
		}
		gk := groupKey{stage: nv.Stage, target: con.Tag.Target}
		groups[gk] = append(groups[gk], m)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("chance constraint selects no rows (family %q, target %q): %w", c.Family, c.Target, domain.ErrInvalidSpec)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b groupKey) int {
		if d := cmp.Compare(a.stage, b.stage); d != 0 {
			return d
		}
		return cmp.Compare(a.target, b.target)
	})

	b := asm.Program.Extend()
	for _, gk := range keys {
		ms := groups[gk]
		total := 0.0
		for _, m := range ms {
			total += m.weight
		}
		if total <= 0 {
			continue
		}
		for i := range ms {
			ms[i].weight /= total
		}
		label := fmt.Sprintf("%s,s%d,%s", c.Family, gk.stage, gk.target)
		switch risk {
		case RiskCVaR:
			applyCVaR(b, label, gk, ms, c.Alpha)
		case RiskGaussian:
			applyGaussian(b, ms, c.Alpha)
		}
	}

	prog, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("chance constraint: %w", err)
	}
	return asm.WithProgram(prog), nil
}

// applyCVaR adds t free and z_n ≥ 0 with sign·aᵀx_n − t − z_n ≤ sign·b_n and
// t + (1/α) Σ q_n z_n ≤ 0.
func applyCVaR(b *lp.Builder, label string, gk groupKey, ms []member, alpha float64) {
	t := b.AddVar(fmt.Sprintf("cvar_t[%s]", label), -lp.Inf, lp.Inf, 0)
	bound := []lp.Term{lp.T(t, 1)}
	for i, m := range ms {
		con := b.Constraint(m.row)
		z := b.AddVar(fmt.Sprintf("cvar_z[%s,%d]", label, i), 0, lp.Inf, 0)
		terms := make([]lp.Term, 0, len(con.Terms)+2)
		for _, term := range con.Terms {
			terms = append(terms, lp.T(term.Var, m.sign*term.Coef))
		}
		terms = append(terms, lp.T(t, -1), lp.T(z, -1))
		b.Replace(m.row, lp.LE, m.sign*con.RHS, terms...)
		bound = append(bound, lp.T(z, m.weight/alpha))
	}
	tag := lp.Tag{Family: FamilyChance, Target: gk.target, Node: domain.NoParent, Copy: domain.NoScenario}
	b.AddRow(fmt.Sprintf("cvar[%s]", label), tag, lp.LE, 0, bound...)
}

// applyGaussian tightens every row to μ + σ·Φ⁻¹(α) of the fitted right-hand sides.
func applyGaussian(b *lp.Builder, ms []member, alpha float64) {
	rhs := make([]float64, len(ms))
	weights := make([]float64, len(ms))
	for i, m := range ms {
		rhs[i] = m.sign * b.Constraint(m.row).RHS
		weights[i] = m.weight
	}
	mu, variance := stat.PopMeanVariance(rhs, weights)
	sigma := math.Sqrt(math.Max(0, variance))
	q := mu + sigma*distuv.UnitNormal.Quantile(alpha)

	for _, m := range ms {
		con := b.Constraint(m.row)
		b.Replace(m.row, con.Sense, m.sign*q, con.Terms...)
	}
}
