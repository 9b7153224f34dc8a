package main

import (
	"context"

	"github.com/aretw0/plantopt/internal/cli"
	"github.com/spf13/cobra"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the configured planning problem",
	Long: `Assembles the stochastic program of the configured tree, solves it and prints the
expected objective, the first-stage plan and the distribution over scenarios.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")
		baseline, _ := cmd.Flags().GetBool("baseline")
		waitAndSee, _ := cmd.Flags().GetBool("wait-and-see")

		return withSignals(cmd, func(ctx context.Context) error {
			return cli.Solve(ctx, options(cmd), cli.SolveOptions{
				Label:      label,
				Baseline:   baseline,
				WaitAndSee: waitAndSee,
			})
		})
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the stochastic plan with its simplifications",
	Long: `Solves the full model, its truncation, the expected-value problem and the model
without recourse, and prints their expected objectives side by side.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetInt("at")

		return withSignals(cmd, func(ctx context.Context) error {
			return cli.Compare(ctx, options(cmd), at)
		})
	},
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().StringP("label", "l", "", "Label of the run")
	solveCmd.Flags().Bool("baseline", false, "Also evaluate the expected-value plan (VSS)")
	solveCmd.Flags().Bool("wait-and-see", false, "Also solve every scenario with perfect information (EVPI)")

	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().Int("at", 1, "Stage of the truncated variant")
}
