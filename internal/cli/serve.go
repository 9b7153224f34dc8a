package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/plantopt"
	"github.com/aretw0/plantopt/internal/metrics"
	httpAdapter "github.com/aretw0/plantopt/pkg/adapters/http"
)

// ShutdownTimeout bounds the graceful shutdown of the server.
const ShutdownTimeout = 5 * time.Second

// ServeOptions configures the serve command.
type ServeOptions struct {
	// Addr overrides server.addr.
	Addr string
	// Ready, when set, receives the bound address once the server listens.
	Ready func(addr string)
}

// Serve runs the HTTP API until ctx is canceled.
func Serve(ctx context.Context, opts Options, so ServeOptions) (err error) {
	ws, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return err
	}
	streams := httpAdapter.NewStreamManager(ws.logger)
	planner := createPlanner(ws.cfg, ws.logger, ws.storage, opts.Debug, recorder.Hooks(), streams.Hooks())

	handler := httpAdapter.NewHandler(httpAdapter.Config{
		Planner: planner,
		Store:   ws.store,
		Streams: streams,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:  ws.logger,
	})

	addr := ws.cfg.Server.Addr
	if so.Addr != "" {
		addr = so.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  ws.cfg.Server.ReadTimeout,
		WriteTimeout: ws.cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		ws.logger.Info("server started", "addr", ln.Addr().String(), "version", plantopt.Version, "store", ws.cfg.Store.Kind)
		serverErrors <- srv.Serve(ln)
	}()
	if so.Ready != nil {
		so.Ready(ln.Addr().String())
	}

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		ws.logger.Info("shutting down server", "timeout", ShutdownTimeout)

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ws.logger.Warn("graceful shutdown did not complete", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("error killing server: %w", err)
			}
		}
		ws.logger.Info("server stopped gracefully")
		return nil
	}
}
