// Package solve hands an assembled program to a numerical backend and reads the
// solution back onto the scenario tree.
package solve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/plantopt/pkg/adapters/glpk"
	"github.com/aretw0/plantopt/pkg/adapters/simplex"
	"github.com/aretw0/plantopt/pkg/coupling"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/ports"
	"github.com/aretw0/plantopt/pkg/stage"
)

// Resolver picks the backend for a configuration.
type Resolver func(cfg domain.SolverConfig, logger *slog.Logger) (ports.Backend, error)

// Solver runs solves. It holds no state between calls.
type Solver struct {
	resolve Resolver
	logger  *slog.Logger
	hooks   []domain.SolveHooks
}

// Option configures a Solver.
type Option func(*Solver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}

// WithHooks registers lifecycle callbacks. It may be given several times.
func WithHooks(hooks domain.SolveHooks) Option {
	return func(s *Solver) {
		s.hooks = append(s.hooks, hooks)
	}
}

// WithBackend forces every solve onto backend regardless of SolverConfig.Backend.
func WithBackend(backend ports.Backend) Option {
	return func(s *Solver) {
		s.resolve = func(domain.SolverConfig, *slog.Logger) (ports.Backend, error) {
			return backend, nil
		}
	}
}

// WithResolver replaces the backend lookup.
func WithResolver(r Resolver) Option {
	return func(s *Solver) {
		s.resolve = r
	}
}

// New creates a Solver using the built-in backends.
func New(opts ...Option) *Solver {
	s := &Solver{
		resolve: DefaultResolver,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultResolver knows the in-process simplex and the glpsol process backend.
func DefaultResolver(cfg domain.SolverConfig, logger *slog.Logger) (ports.Backend, error) {
	switch cfg.Backend {
	case domain.BackendSimplex, "":
		return simplex.New(simplex.WithLogger(logger)), nil
	case domain.BackendGLPK:
		return glpk.New(glpk.WithCommand(cfg.Command), glpk.WithLogger(logger)), nil
	}
	return nil, fmt.Errorf("unknown solver backend %q: %w", cfg.Backend, domain.ErrInvalidSpec)
}

// Solve is New().Solve.
func Solve(ctx context.Context, asm *coupling.Assembly, cfg domain.SolverConfig) (*domain.SolveResult, error) {
	return New().Solve(ctx, asm, cfg)
}

// Solve runs one solve of asm.
//
// Infeasible and unbounded programs yield a result with that status and a nil error.
// Backend failures, including timeouts, yield a result with StatusSolverFailure and a
// *domain.SolverFailureError. Failures are never retried.
func (s *Solver) Solve(ctx context.Context, asm *coupling.Assembly, cfg domain.SolverConfig) (*domain.SolveResult, error) {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = domain.DefaultTolerance
	}
	backend, err := s.resolve(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	res := &domain.SolveResult{
		ID:          uuid.NewString(),
		Formulation: asm.Formulation,
		Backend:     backend.Name(),
		Variables:   asm.Program.NumVars(),
		Constraints: asm.Program.NumRows(),
	}
	s.emit(ctx, domain.EventSolveStart, res, nil)
	s.logger.Debug("solve started",
		"id", res.ID, "backend", res.Backend, "formulation", res.Formulation,
		"vars", res.Variables, "rows", res.Constraints)

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	sol, err := backend.Solve(runCtx, asm.Program, ports.BackendOptions{Tolerance: cfg.Tolerance, Duals: cfg.Duals})
	res.Elapsed = time.Since(start)

	if err != nil {
		failure := asFailure(backend.Name(), cfg, err)
		res.Status = domain.StatusSolverFailure
		res.Diagnostic = failure.Diagnostic
		s.logger.Error("solve failed", "id", res.ID, "backend", res.Backend, "err", failure)
		s.emit(ctx, domain.EventSolveEnd, res, failure)
		return res, failure
	}

	res.Status = sol.Status
	res.Diagnostic = sol.Diagnostic
	if sol.Status != domain.StatusOptimal {
		s.logger.Info("solve finished without optimum", "id", res.ID, "status", res.Status)
		s.emit(ctx, domain.EventSolveEnd, res, nil)
		return res, nil
	}

	if err := extract(asm, sol, cfg, res); err != nil {
		failure := &domain.SolverFailureError{Backend: backend.Name(), Diagnostic: err.Error(), Err: err}
		res.Status = domain.StatusSolverFailure
		res.Diagnostic = failure.Diagnostic
		res.Bundles, res.ScenarioBundles = nil, nil
		s.emit(ctx, domain.EventSolveEnd, res, failure)
		return res, failure
	}

	s.logger.Info("solve finished", "id", res.ID, "status", res.Status, "objective", res.Objective, "elapsed", res.Elapsed)
	s.emit(ctx, domain.EventSolveEnd, res, nil)
	return res, nil
}

func (s *Solver) emit(ctx context.Context, typ domain.EventType, res *domain.SolveResult, err error) {
	ev := &domain.SolveEvent{
		Timestamp:   time.Now(),
		Type:        typ,
		Backend:     res.Backend,
		Formulation: res.Formulation,
		Variables:   res.Variables,
		Constraints: res.Constraints,
		Status:      res.Status,
		Objective:   res.Objective,
		Elapsed:     res.Elapsed,
		Err:         err,
	}
	for _, h := range s.hooks {
		switch typ {
		case domain.EventSolveStart:
			domain.Emit(ctx, h.OnSolveStart, ev)
		case domain.EventSolveEnd:
			domain.Emit(ctx, h.OnSolveEnd, ev)
		}
	}
}

func asFailure(backend string, cfg domain.SolverConfig, err error) *domain.SolverFailureError {
	var sfe *domain.SolverFailureError
	if errors.As(err, &sfe) {
		return sfe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.SolverFailureError{
			Backend:    backend,
			Diagnostic: fmt.Sprintf("solver did not finish within %s", cfg.Timeout),
			Err:        err,
		}
	}
	return &domain.SolverFailureError{Backend: backend, Diagnostic: err.Error(), Err: err}
}

// extract maps solution values onto decision bundles.
func extract(asm *coupling.Assembly, sol *lp.Solution, cfg domain.SolverConfig, res *domain.SolveResult) error {
	if len(sol.X) != asm.Program.NumVars() {
		return fmt.Errorf("backend returned %d values for %d variables", len(sol.X), asm.Program.NumVars())
	}
	res.Objective = sol.Objective
	res.Bundles = make(map[domain.NodeID]*domain.DecisionBundle)

	for _, key := range asm.Order {
		nv := asm.Nodes[key]
		b := bundle(nv, sol.X)
		if key.Copy != domain.NoScenario {
			res.ScenarioBundles = append(res.ScenarioBundles, b)
		}
		if _, ok := res.Bundles[key.Node]; !ok || key.Copy < res.Bundles[key.Node].Scenario {
			res.Bundles[key.Node] = b
		}
	}

	tol := math.Max(1e-6, cfg.Tolerance)
	for _, c := range asm.Couplings {
		for _, pair := range c.Pairs {
			a, b := sol.X[pair[0]], sol.X[pair[1]]
			if math.Abs(a-b) > tol*(1+math.Abs(a)) {
				return fmt.Errorf("node %d: scenario copies disagree on %s (%g vs %g)",
					c.Node, asm.Program.Variable(pair[1]).Name, a, b)
			}
		}
	}

	if cfg.Duals && sol.Duals != nil {
		res.Duals = make(map[string]float64, len(sol.Duals))
		for i, d := range sol.Duals {
			res.Duals[asm.Program.Constraint(lp.Row(i)).Name] = d
		}
	}
	return nil
}

func bundle(nv *stage.NodeVars, x []float64) *domain.DecisionBundle {
	b := &domain.DecisionBundle{
		Node:     nv.Key.Node,
		Scenario: nv.Key.Copy,
		Stage:    nv.Stage,
	}
	values := func(vars map[string]lp.Var) map[string]float64 {
		if len(vars) == 0 {
			return nil
		}
		out := make(map[string]float64, len(vars))
		for name, v := range vars {
			out[name] = clean(x[v])
		}
		return out
	}
	b.Purchase = values(nv.Purchase)
	b.Spot = values(nv.Spot)
	b.Output = values(nv.Output)
	b.Sold = values(nv.Sold)
	b.Excess = values(nv.Excess)

	if len(nv.Run) > 0 {
		b.Run = make(map[string]float64, len(nv.Run))
		b.Throughput = make(map[string]float64)
		for rt, v := range nv.Run {
			val := clean(x[v])
			b.Run[rt.String()] = val
			b.Throughput[rt.Process] += val
		}
	}

	for name, sold := range b.Sold {
		b.Revenue += nv.Price[name] * sold
		if d, ok := nv.Demand[name]; ok {
			if b.LostSales == nil {
				b.LostSales = make(map[string]float64)
			}
			b.LostSales[name] = clean(math.Max(0, d-sold))
		}
	}
	for name, q := range b.Purchase {
		b.Cost += nv.Cost[name] * q
	}
	for name, q := range b.Spot {
		b.Cost += nv.SpotCost[name] * q
	}
	return b
}

// clean snaps solver round-off to zero.
func clean(v float64) float64 {
	if math.Abs(v) < 1e-9 {
		return 0
	}
	return v
}

// FamilyFix tags rows added by FixRoot.
const FamilyFix = "fix"

// FixRoot returns a copy of asm whose root purchases are fixed to the values of plan.
// Solving it evaluates that first-stage plan on the full tree (the EEV when plan comes
// from the expected-value problem).
func FixRoot(asm *coupling.Assembly, plan *domain.DecisionBundle) (*coupling.Assembly, error) {
	if plan == nil {
		return nil, fmt.Errorf("fix root: no plan: %w", domain.ErrInvalidSpec)
	}
	root := asm.Nodes[coupling.RootKey()]
	b := asm.Program.Extend()
	for name, v := range root.Purchase {
		q, ok := plan.Purchase[name]
		if !ok {
			return nil, fmt.Errorf("fix root: plan has no purchase of %q: %w", name, domain.ErrInvalidSpec)
		}
		tag := lp.Tag{Family: FamilyFix, Target: name, Node: 0, Copy: domain.NoScenario}
		b.AddRow(fmt.Sprintf("fix[n0,%s]", name), tag, lp.EQ, q, lp.T(v, 1))
	}
	prog, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("fix root: %w", err)
	}
	return asm.WithProgram(prog), nil
}
