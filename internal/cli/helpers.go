package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/aretw0/plantopt/internal/config"
	"github.com/aretw0/plantopt/internal/logging"
	"github.com/aretw0/plantopt/pkg/domain"
)

// SignalContext is canceled by SIGINT or SIGTERM and remembers which signal
// arrived.
type SignalContext struct {
	context.Context
	Cancel context.CancelFunc
	sig    atomic.Value
}

// NewSignalContext works like signal.NotifyContext but keeps the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, Cancel: cancel}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			sc.sig.Store(sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return sc
}

// Signal returns the signal that canceled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sig, _ := sc.sig.Load().(os.Signal)
	return sig
}

// Interrupted reports on w how the command stopped when a signal ended it.
func (sc *SignalContext) Interrupted(w io.Writer) {
	if sig := sc.Signal(); sig != nil {
		printSystemMessage(w, "Interrupted by %s.", sig)
	}
}

// createLogger configures the application logger from the log section of the
// configuration. Debug forces the debug level.
func createLogger(cfg config.LogConfig, debug bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.NewWithOptions(logging.Options{Level: level, Format: logging.Format(cfg.Format)}), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.SolveHooks {
	return domain.SolveHooks{
		OnAssemble: func(ctx context.Context, e *domain.SolveEvent) {
			logger.Debug("Assembled", "formulation", e.Formulation, "vars", e.Variables, "rows", e.Constraints)
		},
		OnSolveStart: func(ctx context.Context, e *domain.SolveEvent) {
			logger.Debug("Solve Start", "backend", e.Backend)
		},
		OnSolveEnd: func(ctx context.Context, e *domain.SolveEvent) {
			if e.Err != nil {
				logger.Debug("Solve End (Error)", "backend", e.Backend, "err", e.Err)
			} else {
				logger.Debug("Solve End", "backend", e.Backend, "status", e.Status, "objective", e.Objective, "elapsed", e.Elapsed)
			}
		},
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// handleExecutionError turns an interruption into a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
