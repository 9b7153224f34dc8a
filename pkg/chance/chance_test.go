package chance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aretw0/plantopt/internal/testutils"
	"github.com/aretw0/plantopt/pkg/chance"
	"github.com/aretw0/plantopt/pkg/coupling"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/aretw0/plantopt/pkg/solve"
)

// capacityTree has a fixed demand of 120 and an uncertain distiller capacity:
// 60 or 150 with probability 0.5. Throughput equals the root purchase in both
// scenarios, so the hard model can only buy 60.
func capacityTree(t *testing.T) *scenario.Tree {
	t.Helper()
	b := scenario.NewBuilder(domain.Payload{})
	b.Child(b.Root(), "tight", 0.5, domain.Payload{"demand.fuel": 120, "capacity.distill": 60})
	b.Child(b.Root(), "loose", 0.5, domain.Payload{"demand.fuel": 120, "capacity.distill": 150})
	tree, err := b.Build()
	require.NoError(t, err)
	return tree
}

func solveObjective(t *testing.T, asm *coupling.Assembly) *domain.SolveResult {
	t.Helper()
	res, err := solve.Solve(context.Background(), asm, domain.DefaultSolverConfig())
	require.NoError(t, err)
	require.Equal(t, domain.StatusOptimal, res.Status, res.Diagnostic)
	return res
}

func capacityConstraint(alpha float64, risk chance.Risk) chance.Constraint {
	return chance.Constraint{
		Selector: chance.Selector{Family: "capacity", Target: "distill"},
		Alpha:    alpha,
		Risk:     risk,
	}
}

func TestApply_CVaR(t *testing.T) {
	tree := capacityTree(t)
	asm, err := coupling.Assemble(tree, testutils.Refinery(), domain.ModelConfig{})
	require.NoError(t, err)

	hard := solveObjective(t, asm)
	assert.InDelta(t, 900, hard.Objective, 1e-6)

	t.Run("Loose Level Relaxes The Plan", func(t *testing.T) {
		// CVaR_0.6 of (Q-60, Q-150) is (0.5(Q-60) + 0.1(Q-150)) / 0.6, zero at Q = 75.
		relaxed, err := chance.Apply(asm, capacityConstraint(0.6, chance.RiskCVaR))
		require.NoError(t, err)

		res := solveObjective(t, relaxed)
		assert.InDelta(t, 75, res.Bundles[0].Purchase["crude"], 1e-6)
		assert.InDelta(t, 1125, res.Objective, 1e-6)
		assert.Greater(t, res.Bundles[1].Throughput["distill"], 60.0, "tight scenario may exceed its capacity")
	})

	t.Run("Small Level Matches Hard Constraint", func(t *testing.T) {
		strict, err := chance.Apply(asm, capacityConstraint(0.1, ""))
		require.NoError(t, err)
		assert.InDelta(t, 900, solveObjective(t, strict).Objective, 1e-6)
	})

	t.Run("Scenario Formulation Agrees", func(t *testing.T) {
		sasm, err := coupling.Assemble(tree, testutils.Refinery(), domain.ModelConfig{Formulation: domain.FormulationScenario})
		require.NoError(t, err)
		relaxed, err := chance.Apply(sasm, capacityConstraint(0.6, chance.RiskCVaR))
		require.NoError(t, err)
		assert.InDelta(t, 1125, solveObjective(t, relaxed).Objective, 1e-6)
	})

	t.Run("Source Assembly Is Untouched", func(t *testing.T) {
		rows := asm.Program.NumRows()
		_, err := chance.Apply(asm, capacityConstraint(0.6, chance.RiskCVaR))
		require.NoError(t, err)
		assert.Equal(t, rows, asm.Program.NumRows())
		assert.InDelta(t, 900, solveObjective(t, asm).Objective, 1e-6)
	})
}

func TestApply_Gaussian(t *testing.T) {
	asm, err := coupling.Assemble(capacityTree(t), testutils.Refinery(), domain.ModelConfig{})
	require.NoError(t, err)

	tightened, err := chance.Apply(asm, capacityConstraint(0.1, chance.RiskGaussian))
	require.NoError(t, err)

	// Capacities 60 and 150 fit N(105, 45²).
	limit := 105 + 45*distuv.UnitNormal.Quantile(0.1)
	res := solveObjective(t, tightened)
	assert.InDelta(t, limit, res.Bundles[0].Purchase["crude"], 1e-6)
	assert.InDelta(t, 15*limit, res.Objective, 1e-6)
}

func TestApply_Errors(t *testing.T) {
	asm, err := coupling.Assemble(capacityTree(t), testutils.Refinery(), domain.ModelConfig{})
	require.NoError(t, err)

	tests := []struct {
		name      string
		c         chance.Constraint
		nonConvex bool
	}{
		{name: "Value At Risk", c: capacityConstraint(0.1, chance.RiskVaR), nonConvex: true},
		{name: "Gaussian Above Median", c: capacityConstraint(0.5, chance.RiskGaussian), nonConvex: true},
		{name: "Equality Family", c: chance.Constraint{Selector: chance.Selector{Family: "balance"}, Alpha: 0.1}, nonConvex: true},
		{name: "Alpha Zero", c: capacityConstraint(0, chance.RiskCVaR)},
		{name: "Alpha One", c: capacityConstraint(1, chance.RiskCVaR)},
		{name: "Unknown Risk", c: capacityConstraint(0.1, "entropic")},
		{name: "Empty Selection", c: chance.Constraint{Selector: chance.Selector{Family: "capacity", Target: "crack"}, Alpha: 0.1}},
		{name: "Stage Without Rows", c: chance.Constraint{Selector: chance.Selector{Family: "capacity", Stages: []int{0}}, Alpha: 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chance.Apply(asm, tt.c)
			require.Error(t, err)
			if tt.nonConvex {
				var nc *domain.NonConvexReformulationError
				assert.ErrorAs(t, err, &nc)
				assert.ErrorIs(t, err, domain.ErrNonConvexReformulation)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidSpec)
		})
	}
}
