package main

import (
	"context"

	"github.com/aretw0/plantopt/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Exposes the planner as a JSON API over HTTP, with Prometheus metrics and a stream of solve events.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		return withSignals(cmd, func(ctx context.Context) error {
			return cli.Serve(ctx, options(cmd), cli.ServeOptions{Addr: addr})
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on, overrides server.addr")
}
