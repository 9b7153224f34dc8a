package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/plantopt"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of plantopt",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "plantopt version %s\n", strings.TrimSpace(plantopt.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
