package main

import (
	"github.com/aretw0/plantopt/internal/cli"
	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect archived runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListResults(cmd.Context(), options(cmd))
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the report of an archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ShowResult(cmd.Context(), options(cmd), args[0])
	},
}

var resultsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.DeleteResult(cmd.Context(), options(cmd), args[0])
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsShowCmd, resultsDeleteCmd)
}
