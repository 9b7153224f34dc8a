package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/plantopt/internal/cli"
	"github.com/aretw0/plantopt/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "plantopt",
	Short: "plantopt plans refinery purchases under uncertain demand",
	Long: `plantopt builds a multi-stage stochastic linear program from a resource spec and a
scenario tree, solves it and reports the expected outcome of the first-stage plan.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", fmt.Sprintf("Configuration file (default %s if present)", config.DefaultPath))
	rootCmd.PersistentFlags().String("resources", "", "Resource spec file, overrides the configuration")
	rootCmd.PersistentFlags().String("tree", "", "Scenario tree file, overrides the configuration")
	rootCmd.PersistentFlags().Int("truncate", 0, "Collapse the tree beyond this stage, overrides the configuration")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
	rootCmd.PersistentFlags().Bool("json", false, "Print JSON instead of a report")
}

// options reads the persistent flags.
func options(cmd *cobra.Command) cli.Options {
	flags := cmd.Flags()
	opts := cli.Options{Out: cmd.OutOrStdout()}
	opts.ConfigPath, _ = flags.GetString("config")
	opts.Resources, _ = flags.GetString("resources")
	opts.Tree, _ = flags.GetString("tree")
	opts.Debug, _ = flags.GetBool("debug")
	opts.JSON, _ = flags.GetBool("json")
	if flags.Changed("truncate") {
		stage, _ := flags.GetInt("truncate")
		opts.Truncate = &stage
	}
	return opts
}

// withSignals runs fn under a context canceled on SIGINT or SIGTERM.
func withSignals(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx := cli.NewSignalContext(cmd.Context())
	defer ctx.Cancel()
	err := fn(ctx)
	ctx.Interrupted(cmd.ErrOrStderr())
	return err
}
