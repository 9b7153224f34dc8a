package solve_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt/internal/testutils"
	"github.com/aretw0/plantopt/pkg/coupling"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/ports"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/aretw0/plantopt/pkg/solve"
)

func assemble(t *testing.T, tree *scenario.Tree, spec *domain.ResourceSpec, cfg domain.ModelConfig) *coupling.Assembly {
	t.Helper()
	asm, err := coupling.Assemble(tree, spec, cfg)
	require.NoError(t, err)
	return asm
}

func solveOptimal(t *testing.T, asm *coupling.Assembly) *domain.SolveResult {
	t.Helper()
	res, err := solve.Solve(context.Background(), asm, domain.DefaultSolverConfig())
	require.NoError(t, err)
	require.Equal(t, domain.StatusOptimal, res.Status, res.Diagnostic)
	return res
}

func TestSolve_TwoStage(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)

	t.Run("Without Recourse Buys For High Demand", func(t *testing.T) {
		res := solveOptimal(t, assemble(t, tree, testutils.Refinery(), domain.ModelConfig{}))

		assert.InDelta(t, 1300, res.Objective, 1e-6)
		root := res.Bundles[0]
		assert.InDelta(t, 120, root.Purchase["crude"], 1e-6)
		assert.InDelta(t, 1200, root.Cost, 1e-6)

		low := res.Bundles[1]
		assert.InDelta(t, 80, low.Sold["fuel"], 1e-6)
		assert.InDelta(t, 40, low.Excess["fuel"], 1e-6)
		assert.InDelta(t, 120, low.Throughput["distill"], 1e-6)
		assert.InDelta(t, 0, low.LostSales["fuel"], 1e-9)
	})

	t.Run("Spot Recourse Is Worth Using", func(t *testing.T) {
		res := solveOptimal(t, assemble(t, tree, testutils.RefineryWithSpot(), domain.ModelConfig{Recourse: true}))

		assert.InDelta(t, 1400, res.Objective, 1e-6)
		assert.InDelta(t, 80, res.Bundles[0].Purchase["crude"], 1e-6)
		high := res.Bundles[2]
		assert.InDelta(t, 40, high.Spot["crude"], 1e-6)
		assert.InDelta(t, 25*120-15*40, high.Contribution(), 1e-6)
	})

	t.Run("Recourse Flag Off Ignores Spot Market", func(t *testing.T) {
		res := solveOptimal(t, assemble(t, tree, testutils.RefineryWithSpot(), domain.ModelConfig{}))
		assert.InDelta(t, 1300, res.Objective, 1e-6)
		assert.Empty(t, res.Bundles[2].Spot)
	})
}

func TestSolve_ExpectedValueAndEEV(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)
	spec := testutils.Refinery()

	evTree, err := scenario.Truncate(tree, 0)
	require.NoError(t, err)
	ev := solveOptimal(t, assemble(t, evTree, spec, domain.ModelConfig{}))
	assert.InDelta(t, 1500, ev.Objective, 1e-6)
	assert.InDelta(t, 100, ev.Bundles[0].Purchase["crude"], 1e-6)

	fixed, err := solve.FixRoot(assemble(t, tree, spec, domain.ModelConfig{}), ev.Bundles[0])
	require.NoError(t, err)
	eev := solveOptimal(t, fixed)
	assert.InDelta(t, 1250, eev.Objective, 1e-6)
	assert.InDelta(t, 20, eev.Bundles[2].LostSales["fuel"], 1e-6, "high demand scenario loses sales under the EV plan")
	assert.InDelta(t, 20, eev.Bundles[1].Excess["fuel"], 1e-6)
}

func TestSolve_Formulations(t *testing.T) {
	tree := testutils.ThreeStageTree(t)
	spec := testutils.RefineryWithSpot()
	spec.RampLimit = domain.Float(25)

	node := solveOptimal(t, assemble(t, tree, spec, domain.ModelConfig{Formulation: domain.FormulationNode, Recourse: true}))
	scen := solveOptimal(t, assemble(t, tree, spec, domain.ModelConfig{Formulation: domain.FormulationScenario, Recourse: true}))

	assert.InDelta(t, node.Objective, scen.Objective, 1e-6)
	assert.Len(t, node.Bundles, tree.Len())
	assert.Len(t, scen.Bundles, tree.Len())
	assert.Empty(t, node.ScenarioBundles)
	// two stage-1 nodes with two copies each plus four leaves
	assert.Len(t, scen.ScenarioBundles, 8)
	assert.InDelta(t, node.Bundles[0].Purchase["crude"], scen.Bundles[0].Purchase["crude"], 1e-6)
}

func TestSolve_CapacityZero(t *testing.T) {
	tree := testutils.TwoScenarioTree(t)

	t.Run("Optimal At Zero Throughput", func(t *testing.T) {
		spec := testutils.Refinery()
		spec.Processes[0].Capacity = 0
		res := solveOptimal(t, assemble(t, tree, spec, domain.ModelConfig{}))
		assert.InDelta(t, 0, res.Objective, 1e-9)
		assert.InDelta(t, 0, res.Bundles[0].Purchase["crude"], 1e-9)
	})

	t.Run("Infeasible With Service Floor", func(t *testing.T) {
		spec := testutils.Refinery()
		spec.Processes[0].Capacity = 0
		spec.Products[0].MustServe = true
		res, err := solve.Solve(context.Background(), assemble(t, tree, spec, domain.ModelConfig{}), domain.DefaultSolverConfig())
		require.NoError(t, err, "infeasibility is a status, not an error")
		assert.Equal(t, domain.StatusInfeasible, res.Status)
		assert.Empty(t, res.Bundles)
	})
}

func TestSolve_Duals(t *testing.T) {
	cfg := domain.DefaultSolverConfig()
	cfg.Duals = true
	asm := assemble(t, testutils.TwoScenarioTree(t), testutils.Refinery(), domain.ModelConfig{})

	res, err := solve.Solve(context.Background(), asm, cfg)
	require.NoError(t, err)
	require.Contains(t, res.Duals, "dem[n1,fuel]")
	// surplus output already sits in the low scenario, so one more unit of demand
	// there is worth half the price
	assert.InDelta(t, 12.5, res.Duals["dem[n1,fuel]"], 1e-6)
	// in the high scenario it also has to be bought
	assert.InDelta(t, 2.5, res.Duals["dem[n2,fuel]"], 1e-6)
	assert.Zero(t, res.Duals["cap[n1,distill]"])
}

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Solve(ctx context.Context, prog *lp.Program, opts ports.BackendOptions) (*lp.Solution, error) {
	args := m.Called(ctx, prog, opts)
	sol, _ := args.Get(0).(*lp.Solution)
	return sol, args.Error(1)
}

func TestSolve_Failures(t *testing.T) {
	asm := assemble(t, testutils.TwoScenarioTree(t), testutils.Refinery(), domain.ModelConfig{})

	t.Run("Backend Error", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("Solve", mock.Anything, asm.Program, mock.Anything).Return(nil, errors.New("numerical trouble")).Once()

		res, err := solve.New(solve.WithBackend(backend)).Solve(context.Background(), asm, domain.DefaultSolverConfig())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSolverFailure)
		assert.Equal(t, domain.StatusSolverFailure, res.Status)
		assert.Contains(t, res.Diagnostic, "numerical trouble")
		backend.AssertExpectations(t)
	})

	t.Run("Timeout Maps To Solver Failure", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("Solve", mock.Anything, asm.Program, mock.Anything).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded).Once()

		cfg := domain.DefaultSolverConfig()
		cfg.Timeout = 50 * time.Millisecond

		res, err := solve.New(solve.WithBackend(backend)).Solve(context.Background(), asm, cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSolverFailure)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, domain.StatusSolverFailure, res.Status)
		assert.Contains(t, res.Diagnostic, "did not finish within 50ms")
	})

	t.Run("Wrong Solution Size", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("Solve", mock.Anything, mock.Anything, mock.Anything).
			Return(&lp.Solution{Status: domain.StatusOptimal, X: []float64{1}}, nil).Once()

		res, err := solve.New(solve.WithBackend(backend)).Solve(context.Background(), asm, domain.DefaultSolverConfig())
		assert.ErrorIs(t, err, domain.ErrSolverFailure)
		assert.Equal(t, domain.StatusSolverFailure, res.Status)
	})

	t.Run("Unknown Backend", func(t *testing.T) {
		_, err := solve.Solve(context.Background(), asm, domain.SolverConfig{Backend: "cplex"})
		assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	})
}

func TestSolve_Hooks(t *testing.T) {
	var events []domain.EventType
	hooks := domain.SolveHooks{
		OnSolveStart: func(_ context.Context, ev *domain.SolveEvent) { events = append(events, ev.Type) },
		OnSolveEnd: func(_ context.Context, ev *domain.SolveEvent) {
			events = append(events, ev.Type)
			assert.Equal(t, domain.StatusOptimal, ev.Status)
			assert.Positive(t, ev.Variables)
		},
	}

	asm := assemble(t, testutils.TwoScenarioTree(t), testutils.Refinery(), domain.ModelConfig{})
	_, err := solve.New(solve.WithHooks(hooks)).Solve(context.Background(), asm, domain.DefaultSolverConfig())
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventSolveStart, domain.EventSolveEnd}, events)
}
