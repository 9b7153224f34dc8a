package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt/internal/metrics"
	"github.com/aretw0/plantopt/internal/testutils"
	"github.com/aretw0/plantopt/pkg/coupling"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/solve"
)

func TestRecorder_SolveHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	asm, err := coupling.Assemble(testutils.TwoScenarioTree(t), testutils.Refinery(), domain.ModelConfig{})
	require.NoError(t, err)

	solver := solve.New(solve.WithHooks(rec.Hooks()))
	for range 2 {
		_, err := solver.Solve(context.Background(), asm, domain.DefaultSolverConfig())
		require.NoError(t, err)
	}

	expected := `
# HELP plantopt_solves_total Number of finished solves by backend and status.
# TYPE plantopt_solves_total counter
plantopt_solves_total{backend="simplex",status="optimal"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "plantopt_solves_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "plantopt_solve_duration_seconds"))
	assert.Equal(t, 0, testutil.CollectAndCount(reg, "plantopt_models_assembled_total"), "assembly is reported by the planner")
}

func TestRecorder_Assemble(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	rec.Hooks().OnAssemble(context.Background(), &domain.SolveEvent{
		Timestamp: time.Now(), Type: domain.EventAssemble, Formulation: domain.FormulationScenario,
		Variables: 12, Constraints: 7,
	})

	expected := `
# HELP plantopt_program_size Size of the last assembled program.
# TYPE plantopt_program_size gauge
plantopt_program_size{dimension="constraints"} 7
plantopt_program_size{dimension="variables"} 12
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "plantopt_program_size"))
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewRecorder(reg)
	require.NoError(t, err)
	_, err = metrics.NewRecorder(reg)
	assert.Error(t, err)
}
