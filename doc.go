/*
Package plantopt plans a refinery under uncertainty as a multi-stage stochastic linear program over a scenario tree.

A ResourceSpec describes the plant: input streams with their costs, products with prices and demand bounds, processes with capacities, and the yield matrix linking them. A scenario tree describes how demand, prices, costs and capacities may evolve, stage by stage, with conditional probabilities.

# Concept

The Planner turns a tree and a spec into one linear program. Purchases are contracted at a node before its children are observed; runs, outputs and sales happen once a node is reached; spot purchases are the recourse available after the fact. Non-anticipativity is either structural (one set of decisions per node) or explicit (one copy per scenario tied by equality rows).

Two approximations are available. Truncation collapses every sub-tree beyond a stage into its probability-weighted mean, which keeps the first-stage structure at a fraction of the size. Chance constraints replace hard rows, such as capacity, with probabilistic bounds reformulated as linear rows (CVaR) or tightened right-hand sides (Gaussian).

# Usage

	planner := plantopt.New(plantopt.WithLogger(logger))

	run, err := planner.Solve(ctx, tree, spec, plantopt.RunOptions{
		Model:    domain.ModelConfig{Recourse: true},
		Baseline: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(run.Outcome.ExpectedObjective, *run.Outcome.VSS)

Planner.Compare solves several variants concurrently (full tree, truncated tree, expected-value plan) and tabulates them without aborting on the first failure.
*/
package plantopt
