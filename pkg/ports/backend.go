package ports

import (
	"context"

	"github.com/aretw0/plantopt/pkg/lp"
)

// BackendOptions carries the per-call numerical settings of a solve.
type BackendOptions struct {
	Tolerance float64
	Duals     bool
}

// Backend is a numerical LP solver treated as a black box.
//
// Infeasible and unbounded programs are reported through Solution.Status with a nil
// error. Any other failure, including cancellation of ctx, is returned as an error.
type Backend interface {
	// Name identifies the backend in results and metrics.
	Name() string

	// Solve maximizes the program objective.
	Solve(ctx context.Context, prog *lp.Program, opts BackendOptions) (*lp.Solution, error)
}
