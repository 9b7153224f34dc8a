package main

import (
	"github.com/aretw0/plantopt/internal/cli"
	"github.com/spf13/cobra"
)

// treeCmd represents the tree command
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Export the scenario tree",
	Long: `Prints the configured tree, truncated with --truncate, as a Mermaid diagram (graph TD)
or as YAML. --result highlights the worst scenario of an archived run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		result, _ := cmd.Flags().GetString("result")
		return cli.Tree(cmd.Context(), options(cmd), cli.TreeOptions{Format: format, ResultID: result})
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().StringP("format", "f", cli.FormatMermaid, "Output format: mermaid or yaml")
	treeCmd.Flags().String("result", "", "Archived run to overlay")
}
