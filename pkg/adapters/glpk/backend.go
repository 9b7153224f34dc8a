// Package glpk solves programs with the GLPK command-line solver (glpsol).
//
// The program is written in CPLEX LP format to a scratch directory, glpsol is run
// through exec.CommandContext and the plain-text solution it writes is parsed back.
package glpk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/ports"
)

// Name identifies this backend.
const Name = domain.BackendGLPK

// DefaultCommand is the solver executable looked up on PATH.
const DefaultCommand = "glpsol"

// waitDelay bounds how long output pipes are drained after the process is killed.
const waitDelay = 2 * time.Second

// Backend implements ports.Backend by running glpsol.
type Backend struct {
	command string
	args    []string
	workDir string
	logger  *slog.Logger
}

var _ ports.Backend = (*Backend)(nil)

// Option configures the backend.
type Option func(*Backend)

// WithCommand overrides the solver executable.
func WithCommand(command string) Option {
	return func(b *Backend) {
		if command != "" {
			b.command = command
		}
	}
}

// WithArgs appends extra solver flags (e.g. "--nopresol") before the file arguments.
func WithArgs(args ...string) Option {
	return func(b *Backend) {
		b.args = append(b.args, args...)
	}
}

// WithWorkDir sets where scratch directories are created. Defaults to os.TempDir.
func WithWorkDir(dir string) Option {
	return func(b *Backend) {
		b.workDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a glpsol backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		command: DefaultCommand,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "glpk".
func (b *Backend) Name() string { return Name }

// Solve writes the program, runs the solver and reads the solution back.
// Process failures are returned as *domain.SolverFailureError carrying the solver output.
func (b *Backend) Solve(ctx context.Context, prog *lp.Program, opts ports.BackendOptions) (*lp.Solution, error) {
	if prog.NumVars() == 0 {
		return &lp.Solution{Status: domain.StatusOptimal}, nil
	}

	dir, err := os.MkdirTemp(b.workDir, "plantopt-glpk-")
	if err != nil {
		return nil, fmt.Errorf("glpk scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")

	f, err := os.Create(lpPath)
	if err != nil {
		return nil, fmt.Errorf("glpk model file: %w", err)
	}
	if err := WriteLP(f, prog); err != nil {
		f.Close()
		return nil, fmt.Errorf("glpk model file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("glpk model file: %w", err)
	}

	args := append([]string{}, b.args...)
	args = append(args, "--lp", lpPath, "-w", solPath)
	cmd := exec.CommandContext(ctx, b.command, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.Debug("running solver", "command", b.command, "vars", prog.NumVars(), "rows", prog.NumRows())
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.SolverFailureError{
			Backend:    Name,
			Diagnostic: diagnostic(&stdout, &stderr),
			Err:        fmt.Errorf("execution failed: %w", err),
		}
	}

	sf, err := os.Open(solPath)
	if err != nil {
		return nil, &domain.SolverFailureError{
			Backend:    Name,
			Diagnostic: diagnostic(&stdout, &stderr),
			Err:        errors.New("solver produced no solution file"),
		}
	}
	defer sf.Close()

	sol, err := ReadSolution(sf, prog.NumRows(), prog.NumVars())
	if err != nil {
		return nil, &domain.SolverFailureError{Backend: Name, Diagnostic: diagnostic(&stdout, &stderr), Err: err}
	}
	if sol.Status == domain.StatusSolverFailure {
		return nil, &domain.SolverFailureError{
			Backend:    Name,
			Diagnostic: diagnostic(&stdout, &stderr),
			Err:        errors.New("solver finished without a definite status"),
		}
	}
	if sol.Status != domain.StatusOptimal {
		return &lp.Solution{Status: sol.Status, Diagnostic: diagnostic(&stdout, &stderr)}, nil
	}
	if !opts.Duals {
		sol.Duals = nil
	}
	return sol, nil
}

func diagnostic(stdout, stderr *bytes.Buffer) string {
	out := strings.TrimSpace(stdout.String())
	if e := strings.TrimSpace(stderr.String()); e != "" {
		if out != "" {
			out += "\n"
		}
		out += e
	}
	return out
}
