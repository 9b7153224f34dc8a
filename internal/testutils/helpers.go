package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/stretchr/testify/require"
)

// Refinery returns the single-product reference plant: crude at 10/unit with
// unlimited availability, fuel at 25/unit, a 1:1 distiller with capacity 150.
// Demand is left to the tree payloads.
func Refinery() *domain.ResourceSpec {
	return &domain.ResourceSpec{
		Inputs:    []domain.InputStream{{Name: "crude", UnitCost: 10}},
		Products:  []domain.Product{{Name: "fuel", Price: 25}},
		Processes: []domain.Process{{Name: "distill", Capacity: 150}},
		Yields:    []domain.Yield{{Input: "crude", Process: "distill", Product: "fuel", Ratio: 1}},
	}
}

// RefineryWithSpot is Refinery with a spot market for crude at 15/unit.
func RefineryWithSpot() *domain.ResourceSpec {
	spec := Refinery()
	spec.Inputs[0].SpotCost = domain.Float(15)
	return spec
}

// TwoScenarioTree is the high/low demand tree: 80 or 120 units with probability 0.5.
func TwoScenarioTree(t *testing.T) *scenario.Tree {
	t.Helper()
	b := scenario.NewBuilder(domain.Payload{})
	b.Child(b.Root(), "low", 0.5, domain.Payload{"demand.fuel": 80})
	b.Child(b.Root(), "high", 0.5, domain.Payload{"demand.fuel": 120})
	tree, err := b.Build()
	require.NoError(t, err, "Failed to build two-scenario tree")
	return tree
}

// ThreeStageTree branches twice: stage-1 demand 90/110, then ±20 around it.
func ThreeStageTree(t *testing.T) *scenario.Tree {
	t.Helper()
	b := scenario.NewBuilder(domain.Payload{})
	for i, d := range []float64{90, 110} {
		mid := b.Child(b.Root(), "", 0.5, domain.Payload{"demand.fuel": d})
		b.Child(mid, "", 0.4+0.2*float64(i), domain.Payload{"demand.fuel": d - 20})
		b.Child(mid, "", 0.6-0.2*float64(i), domain.Payload{"demand.fuel": d + 20})
	}
	tree, err := b.Build()
	require.NoError(t, err, "Failed to build three-stage tree")
	return tree
}

// WriteFile writes content under a fresh temp dir and returns its absolute path.
// It fails the test immediately on error.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	absPath, err := filepath.Abs(filepath.Join(t.TempDir(), name))
	require.NoError(t, err, "Failed to get absolute path for temp file")
	require.NoError(t, os.WriteFile(absPath, []byte(content), 0o644), "Failed to write temp file")

	return absPath
}
