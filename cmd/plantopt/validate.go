package main

import (
	"github.com/aretw0/plantopt/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, resource spec and tree",
	Long: `Loads every input and assembles the program without solving it, reporting invalid
specs, malformed trees and chance constraints without a convex form.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Validate(cmd.Context(), options(cmd))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
