package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	mcpAdapter "github.com/aretw0/plantopt/pkg/adapters/mcp"
)

// Supported MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// MCPOptions configures the mcp command.
type MCPOptions struct {
	Transport string
	// Addr is the listen address of the SSE transport.
	Addr string
}

// MCP serves the planner to agents over the Model Context Protocol until ctx is
// canceled (SSE) or stdin closes (stdio).
func MCP(ctx context.Context, opts Options, mo MCPOptions) (err error) {
	ws, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)

	planner := createPlanner(ws.cfg, ws.logger, ws.storage, opts.Debug)
	srv := mcpAdapter.NewServer(planner, ws.store, ws.logger)

	switch mo.Transport {
	case "", TransportStdio:
		ws.logger.Info("MCP server started (stdio)", "store", ws.cfg.Store.Kind)
		return srv.ServeStdio()
	case TransportSSE:
		addr := mo.Addr
		if addr == "" {
			addr = ws.cfg.Server.Addr
		}
		if err := srv.ServeSSE(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		ws.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport %q (supported: %s, %s)", mo.Transport, TransportStdio, TransportSSE)
	}
}
