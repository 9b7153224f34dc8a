package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/plantopt/internal/config"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// gen-tree writes a sample project: a two-product refinery, a seeded random-walk
// demand tree expanded to explicit nodes, and the plantopt.yaml that ties them.
func main() {
	targetDir := "examples/refinery"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	// Ensure dir exists
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		panic(err)
	}

	fmt.Printf("Generating sample project in: %s\n", targetDir)

	places := 0
	tree, err := scenario.RandomWalk(scenario.RandomWalkSpec{
		Vars: []scenario.WalkVar{
			{Key: domain.KeyDemand + ".gasoline", Start: 100, StdDev: 15, MaxStep: 30},
			{Key: domain.KeyDemand + ".diesel", Start: 80, StdDev: 10, MaxStep: 20},
		},
		Stages:       3,
		BranchFactor: 3,
		Seed:         42,
		Places:       &places,
	})
	if err != nil {
		panic(err)
	}
	if err := config.WriteTree(filepath.Join(targetDir, "tree.yaml"), tree); err != nil {
		panic(err)
	}

	spot := 70.0
	spec := domain.ResourceSpec{
		Inputs: []domain.InputStream{
			{Name: "light", UnitCost: 55, SpotCost: &spot},
			{Name: "heavy", UnitCost: 40},
		},
		Products: []domain.Product{
			{Name: "gasoline", Price: 90},
			{Name: "diesel", Price: 80},
		},
		Processes: []domain.Process{
			{Name: "distill", Capacity: 250},
			{Name: "crack", Capacity: 90},
		},
		Yields: []domain.Yield{
			{Input: "light", Process: "distill", Product: "gasoline", Ratio: 0.6},
			{Input: "light", Process: "distill", Product: "diesel", Ratio: 0.3},
			{Input: "heavy", Process: "distill", Product: "diesel", Ratio: 0.5},
			{Input: "heavy", Process: "crack", Product: "gasoline", Ratio: 0.7},
		},
	}
	write(filepath.Join(targetDir, "resources.yaml"), spec)

	write(filepath.Join(targetDir, "plantopt.yaml"), map[string]any{
		"resources": "resources.yaml",
		"tree":      "tree.yaml",
		"model":     map[string]any{"formulation": "node", "recourse": true},
		"solver":    map[string]any{"backend": "simplex", "timeout": "30s"},
		"chance": []map[string]any{
			{"family": "capacity", "target": "crack", "alpha": 0.1, "risk": "cvar"},
		},
		"store": map[string]any{"kind": "file", "path": ".plantopt/runs"},
	})

	fmt.Printf("Wrote %d nodes, %d scenarios\n", tree.Len(), len(tree.Leaves()))
}

func write(path string, v any) {
	data, err := yaml.Marshal(v)
	if err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		panic(err)
	}
}
