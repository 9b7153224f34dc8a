package stage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt/internal/testutils"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/aretw0/plantopt/pkg/stage"
)

func key(n domain.NodeID) stage.Key { return stage.Key{Node: n, Copy: domain.NoScenario} }

func buildAll(t *testing.T, tree *scenario.Tree, spec *domain.ResourceSpec, cfg domain.ModelConfig) (*lp.Program, map[domain.NodeID]*stage.NodeVars) {
	t.Helper()
	sb, err := stage.NewBuilder(spec, cfg)
	require.NoError(t, err)

	prog := lp.NewBuilder()
	models := make(map[domain.NodeID]*stage.NodeVars)
	for _, n := range tree.BFS() {
		var parent *stage.NodeVars
		if !n.IsRoot() {
			parent = models[n.Parent]
		}
		nv, err := sb.BuildNode(prog, n, key(n.ID), tree.MustUnconditional(n.ID), parent)
		require.NoError(t, err)
		models[n.ID] = nv
	}
	p, err := prog.Build()
	require.NoError(t, err)
	return p, models
}

func families(p *lp.Program, node domain.NodeID) map[string]int {
	out := make(map[string]int)
	for _, r := range p.Select(func(tag lp.Tag) bool { return tag.Node == node }) {
		out[p.Constraint(r).Tag.Family]++
	}
	return out
}

func TestBuildNode(t *testing.T) {
	t.Run("Information Structure", func(t *testing.T) {
		prog, models := buildAll(t, testutils.TwoScenarioTree(t), testutils.RefineryWithSpot(), domain.ModelConfig{Recourse: true})

		root := models[0]
		assert.Len(t, root.Purchase, 1, "planning decisions at the root")
		assert.Empty(t, root.Run, "no operations before any realization")
		assert.Empty(t, root.Spot, "no recourse at the root")
		assert.Empty(t, families(prog, 0))

		leaf := models[2]
		assert.Empty(t, leaf.Purchase, "leaves have nothing left to plan for")
		assert.Len(t, leaf.Run, 1)
		assert.Len(t, leaf.Spot, 1)
		assert.Equal(t, 120.0, leaf.Demand["fuel"])
		assert.Equal(t, map[string]int{
			stage.FamilyBalance:    1,
			stage.FamilyProduction: 1,
			stage.FamilySplit:      1,
			stage.FamilyDemand:     1,
			stage.FamilyCapacity:   1,
		}, families(prog, 2))
	})

	t.Run("Objective Weights", func(t *testing.T) {
		prog, models := buildAll(t, testutils.TwoScenarioTree(t), testutils.RefineryWithSpot(), domain.ModelConfig{Recourse: true})

		assert.Equal(t, -10.0, prog.Variable(models[0].Purchase["crude"]).Obj)
		assert.Equal(t, 12.5, prog.Variable(models[1].Sold["fuel"]).Obj)
		assert.Equal(t, -7.5, prog.Variable(models[1].Spot["crude"]).Obj)
		assert.Zero(t, prog.Variable(models[1].Excess["fuel"]).Obj)
	})

	t.Run("Payload Overrides", func(t *testing.T) {
		b := scenario.NewBuilder(domain.Payload{"cost.crude": 12})
		b.Child(b.Root(), "only", 1, domain.Payload{"price.fuel": 30, "capacity.distill": 40})
		tree, err := b.Build()
		require.NoError(t, err)

		prog, models := buildAll(t, tree, testutils.Refinery(), domain.ModelConfig{})
		assert.Equal(t, -12.0, prog.Variable(models[0].Purchase["crude"]).Obj)
		assert.Equal(t, 30.0, prog.Variable(models[1].Sold["fuel"]).Obj)

		caps := prog.Select(func(tag lp.Tag) bool { return tag.Family == stage.FamilyCapacity })
		require.Len(t, caps, 1)
		assert.Equal(t, 40.0, prog.Constraint(caps[0]).RHS)
		assert.Empty(t, models[1].Demand, "unbounded demand adds no row")
	})

	t.Run("Ramp And Service Rows", func(t *testing.T) {
		spec := testutils.Refinery()
		spec.RampLimit = domain.Float(10)
		spec.Products[0].MustServe = true

		prog, _ := buildAll(t, testutils.ThreeStageTree(t), spec, domain.ModelConfig{})
		stage1 := families(prog, 1)
		assert.Zero(t, stage1[stage.FamilyRamp], "no ramp against the root")
		assert.Equal(t, 1, stage1[stage.FamilyService])

		leaf := families(prog, 2)
		assert.Equal(t, 2, leaf[stage.FamilyRamp])
	})

	t.Run("Availability Bounds Purchase", func(t *testing.T) {
		spec := testutils.Refinery()
		spec.Inputs[0].Availability = domain.Float(60)
		prog, models := buildAll(t, testutils.TwoScenarioTree(t), spec, domain.ModelConfig{})
		assert.Equal(t, 60.0, prog.Variable(models[0].Purchase["crude"]).Upper)
	})

	t.Run("Invalid Spec", func(t *testing.T) {
		spec := testutils.Refinery()
		spec.Yields[0].Process = "crack"
		_, err := stage.NewBuilder(spec, domain.ModelConfig{})
		assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	})

	t.Run("Parent Mismatch", func(t *testing.T) {
		sb, err := stage.NewBuilder(testutils.Refinery(), domain.ModelConfig{})
		require.NoError(t, err)
		tree := testutils.TwoScenarioTree(t)
		_, err = sb.BuildNode(lp.NewBuilder(), tree.MustNode(1), key(1), 0.5, nil)
		assert.Error(t, err)
	})
}

func TestNodeVars_Decisions(t *testing.T) {
	_, models := buildAll(t, testutils.TwoScenarioTree(t), testutils.RefineryWithSpot(), domain.ModelConfig{Recourse: true})
	leaf := models[1]

	vars := leaf.Decisions()
	assert.Equal(t, []lp.Var{
		leaf.Spot["crude"],
		leaf.Run[domain.Route{Input: "crude", Process: "distill"}],
		leaf.Output["fuel"],
		leaf.Sold["fuel"],
		leaf.Excess["fuel"],
	}, vars)
	assert.Equal(t, "n1", leaf.Key.String())
	assert.Equal(t, "n1s3", stage.Key{Node: 1, Copy: 3}.String())
}
