// Package simplex solves programs in-process with the gonum simplex method.
package simplex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/aretw0/plantopt/pkg/domain"
	plp "github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/ports"
)

// Name identifies this backend.
const Name = domain.BackendSimplex

// Backend implements ports.Backend on top of gonum's lp.Simplex.
type Backend struct {
	logger *slog.Logger
}

var _ ports.Backend = (*Backend)(nil)

// Option configures the backend.
type Option func(*Backend)

// WithLogger sets the logger used for presolve and solve diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a simplex backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "simplex".
func (b *Backend) Name() string { return Name }

type outcome struct {
	sol *plp.Solution
	err error
}

// Solve runs the simplex in a goroutine so that ctx cancellation returns promptly.
// The goroutine itself runs to completion.
func (b *Backend) Solve(ctx context.Context, prog *plp.Program, opts ports.BackendOptions) (*plp.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = domain.DefaultTolerance
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("simplex panic: %v", r)}
			}
		}()
		sol, err := b.solve(prog, tol, opts.Duals)
		done <- outcome{sol: sol, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.sol, out.err
	}
}

func (b *Backend) solve(prog *plp.Program, tol float64, withDuals bool) (*plp.Solution, error) {
	sf := toStandardForm(prog)
	red, feasible := presolve(sf, tol)
	if !feasible {
		b.logger.Debug("presolve detected inconsistent equality rows")
		return &plp.Solution{Status: domain.StatusInfeasible, Diagnostic: "inconsistent equality rows"}, nil
	}
	b.logger.Debug("presolve done",
		"rows", len(sf.a), "cols", len(sf.cols),
		"kept_rows", len(red.rows), "kept_cols", len(red.cols))

	y := make([]float64, len(sf.cols))

	switch {
	case len(red.rows) == 0:
		// no constraints left: every kept column sits at zero unless it improves the objective
		for _, c := range red.c {
			if c < -tol {
				return &plp.Solution{Status: domain.StatusUnbounded}, nil
			}
		}
	default:
		a := mat.NewDense(len(red.rows), len(red.cols), nil)
		for i, row := range red.a {
			a.SetRow(i, row)
		}
		_, x, err := lp.Simplex(red.c, a, red.b, tol, nil)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return &plp.Solution{Status: domain.StatusInfeasible}, nil
		case errors.Is(err, lp.ErrUnbounded):
			return &plp.Solution{Status: domain.StatusUnbounded}, nil
		case err != nil:
			return nil, fmt.Errorf("simplex: %w", err)
		}
		for j, k := range red.cols {
			y[k] = x[j]
		}
	}

	if red.unboundedRay {
		return &plp.Solution{Status: domain.StatusUnbounded, Diagnostic: "empty column with improving cost"}, nil
	}

	xs := sf.recover(y)
	sol := &plp.Solution{
		Status:    domain.StatusOptimal,
		X:         xs,
		Objective: prog.Objective(xs),
	}
	if withDuals {
		duals, err := rowDuals(sf, red, tol, prog.NumRows())
		if err != nil {
			b.logger.Warn("dual extraction failed", "err", err)
		} else {
			sol.Duals = duals
		}
	}
	return sol, nil
}

// rowDuals solves the dual of the reduced program, max bᵀy s.t. Aᵀy ≤ c, and
// maps y back to the original rows as marginal values of the maximized objective.
// Solving the dual directly stays correct on degenerate vertices, where the
// primal point alone does not determine an optimal basis.
func rowDuals(sf *standardForm, red *reduced, tol float64, nrows int) ([]float64, error) {
	duals := make([]float64, nrows)
	m, n := len(red.rows), len(red.cols)
	if m == 0 {
		return duals, nil
	}

	// columns: y⁺ (m), y⁻ (m), slack (n); one equality row per primal column
	width := 2*m + n
	a := mat.NewDense(n, width, nil)
	rhs := make([]float64, n)
	for j := range n {
		sign := 1.0
		if red.c[j] < 0 {
			sign = -1
		}
		for i := range m {
			a.Set(j, i, sign*red.a[i][j])
			a.Set(j, m+i, -sign*red.a[i][j])
		}
		a.Set(j, 2*m+j, sign)
		rhs[j] = sign * red.c[j]
	}
	cost := make([]float64, width)
	for i := range m {
		cost[i] = -red.b[i]
		cost[m+i] = red.b[i]
	}

	_, z, err := lp.Simplex(cost, a, rhs, tol, nil)
	if err != nil {
		return nil, fmt.Errorf("dual program: %w", err)
	}
	for i, r := range red.rows {
		orig := sf.origin[r]
		if orig < 0 {
			continue
		}
		d := -(z[i] - z[m+i]) * sf.flip[r]
		if math.Abs(d) < 1e-12 {
			d = 0
		}
		duals[orig] = d
	}
	return duals, nil
}
