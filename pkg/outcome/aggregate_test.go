package outcome_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt/internal/testutils"
	"github.com/aretw0/plantopt/pkg/coupling"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/outcome"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/aretw0/plantopt/pkg/solve"
)

func solveTree(t *testing.T, tree *scenario.Tree, cfg domain.ModelConfig) *coupling.Assembly {
	t.Helper()
	asm, err := coupling.Assemble(tree, testutils.Refinery(), cfg)
	require.NoError(t, err)
	return asm
}

func run(t *testing.T, asm *coupling.Assembly) *domain.SolveResult {
	t.Helper()
	res, err := solve.Solve(context.Background(), asm, domain.DefaultSolverConfig())
	require.NoError(t, err)
	require.True(t, res.Optimal(), res.Diagnostic)
	return res
}

// eev solves the tree with the root fixed to the expected-value plan.
func eev(t *testing.T, tree *scenario.Tree) *domain.SolveResult {
	t.Helper()
	evTree, err := scenario.Truncate(tree, 0)
	require.NoError(t, err)
	ev := run(t, solveTree(t, evTree, domain.ModelConfig{}))
	fixed, err := solve.FixRoot(solveTree(t, tree, domain.ModelConfig{}), ev.Bundles[0])
	require.NoError(t, err)
	return run(t, fixed)
}

func TestAggregate_TwoStage(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)
	res := run(t, solveTree(t, tree, domain.ModelConfig{}))

	out, err := outcome.Aggregate(tree, res, outcome.WithBaseline(eev(t, tree)), outcome.WithWaitAndSee(1500))
	require.NoError(t, err)

	assert.Equal(t, res.ID, out.ResultID)
	assert.Equal(t, domain.StatusOptimal, out.Status)
	assert.InDelta(t, 1300, out.ExpectedObjective, 1e-6)
	assert.InDelta(t, res.Objective, out.ExpectedObjective, 1e-6)

	require.Len(t, out.Scenarios, 2)
	assert.Equal(t, "low", out.Scenarios[0].Name)
	assert.InDelta(t, 800, out.Scenarios[0].Value, 1e-6)
	assert.InDelta(t, 40, out.Scenarios[0].Excess, 1e-6)
	assert.InDelta(t, 1800, out.Scenarios[1].Value, 1e-6)
	assert.InDelta(t, 0, out.Scenarios[1].LostSales, 1e-9)

	require.NotNil(t, out.Distribution)
	assert.InDelta(t, 800, out.Distribution.Min, 1e-6)
	assert.InDelta(t, 1800, out.Distribution.Max, 1e-6)
	assert.InDelta(t, 1300, out.Distribution.Mean, 1e-6)
	assert.InDelta(t, 500, out.Distribution.StdDev, 1e-6)
	assert.InDelta(t, 800, out.Distribution.VaR, 1e-6)
	assert.InDelta(t, 800, out.Distribution.CVaR, 1e-6)

	require.NotNil(t, out.Root)
	assert.InDelta(t, 120, out.Root.Purchase["crude"], 1e-6)

	require.NotNil(t, out.VSS)
	assert.InDelta(t, 50, *out.VSS, 1e-6)
	require.NotNil(t, out.EVPI)
	assert.InDelta(t, 200, *out.EVPI, 1e-6)
}

func TestAggregate_ZeroProbabilityLeaf(t *testing.T) {
	b := scenario.NewBuilder(domain.Payload{})
	b.Child(b.Root(), "crash", 0, domain.Payload{"demand.fuel": 0})
	b.Child(b.Root(), "normal", 1, domain.Payload{"demand.fuel": 100})
	tree, err := b.Build()
	require.NoError(t, err)

	res := run(t, solveTree(t, tree, domain.ModelConfig{}))
	out, err := outcome.Aggregate(tree, res)
	require.NoError(t, err)

	assert.InDelta(t, 1500, out.ExpectedObjective, 1e-6)
	require.NotNil(t, out.Distribution)
	assert.False(t, math.IsNaN(out.Distribution.CVaR))
	assert.InDelta(t, 1500, out.Distribution.CVaR, 1e-6, "a leaf without mass is not part of the tail")
	assert.InDelta(t, 1500, out.Distribution.VaR, 1e-6)

	_, err = json.Marshal(out)
	assert.NoError(t, err)
}

func TestAggregate_ExpectedValuePlanLosesSales(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)
	out, err := outcome.Aggregate(tree, eev(t, tree))
	require.NoError(t, err)

	assert.InDelta(t, 1250, out.ExpectedObjective, 1e-6)
	assert.InDelta(t, 20, out.Scenarios[1].LostSales, 1e-6)
	assert.Nil(t, out.VSS)
	assert.Nil(t, out.EVPI)
}

func TestAggregate_ScenarioFormulation(t *testing.T) {
	tree := testutils.ThreeStageTree(t)
	node := run(t, solveTree(t, tree, domain.ModelConfig{}))
	scen := run(t, solveTree(t, tree, domain.ModelConfig{Formulation: domain.FormulationScenario}))

	a, err := outcome.Expected(tree, node)
	require.NoError(t, err)
	b, err := outcome.Expected(tree, scen)
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-6)
	assert.InDelta(t, node.Objective, a, 1e-6)
}

func TestAggregate_NonOptimal(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)
	out, err := outcome.Aggregate(tree, &domain.SolveResult{ID: "x", Status: domain.StatusInfeasible})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInfeasible, out.Status)
	assert.Empty(t, out.Scenarios)
	assert.Nil(t, out.Distribution)
}

func TestAggregate_Errors(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)

	t.Run("Missing Bundle", func(t *testing.T) {
		res := &domain.SolveResult{Status: domain.StatusOptimal, Bundles: map[domain.NodeID]*domain.DecisionBundle{0: {}}}
		_, err := outcome.Aggregate(tree, res)
		assert.Error(t, err)
	})

	t.Run("Bad Level", func(t *testing.T) {
		_, err := outcome.Aggregate(tree, &domain.SolveResult{Status: domain.StatusOptimal}, outcome.WithLevel(0))
		assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	})
}

func TestCompare(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)
	rp, err := outcome.Aggregate(tree, run(t, solveTree(t, tree, domain.ModelConfig{})))
	require.NoError(t, err)
	ee, err := outcome.Aggregate(tree, eev(t, tree))
	require.NoError(t, err)

	table := outcome.Compare(
		outcome.Row{Label: "stochastic", Outcome: rp},
		outcome.Row{Label: "expected value", Outcome: ee},
		outcome.Row{Label: "glpk", Err: errors.New("glpsol: not found")},
		outcome.Row{Label: "tight", Outcome: &domain.Outcome{Status: domain.StatusInfeasible}},
	)

	assert.Equal(t, "stochastic", table.Reference)
	require.Len(t, table.Lines, 4)
	assert.InDelta(t, 0, *table.Lines[0].Gap, 1e-9)
	assert.InDelta(t, -50, *table.Lines[1].Gap, 1e-6)
	assert.InDelta(t, 10, *table.Lines[1].LostSales, 1e-6)
	assert.Equal(t, domain.StatusSolverFailure, table.Lines[2].Status)
	assert.Nil(t, table.Lines[2].Expected)
	assert.Equal(t, domain.StatusInfeasible, table.Lines[3].Status)
	assert.Nil(t, table.Lines[3].Expected)

	md := table.Markdown()
	assert.Contains(t, md, "| stochastic | optimal | 1300.00 | 0.00 |")
	assert.Contains(t, md, "glpsol: not found")
	assert.Contains(t, md, "crude=120.00")
}
