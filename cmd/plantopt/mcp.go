package main

import (
	"context"

	"github.com/aretw0/plantopt/internal/cli"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the planner to AI agents as MCP tools: solve, compare, get_run and list_runs.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		return withSignals(cmd, func(ctx context.Context) error {
			return cli.MCP(ctx, options(cmd), cli.MCPOptions{Transport: transport, Addr: addr})
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", cli.TransportStdio, "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().StringP("addr", "a", "", "Address to listen on for SSE, overrides server.addr")
}
