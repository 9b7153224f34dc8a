package plantopt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/plantopt/pkg/chance"
	"github.com/aretw0/plantopt/pkg/coupling"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/outcome"
	"github.com/aretw0/plantopt/pkg/ports"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/aretw0/plantopt/pkg/solve"
)

// Planner is the high-level entry point: it assembles, solves, aggregates and
// optionally archives runs. It is safe for concurrent use.
type Planner struct {
	logger    *slog.Logger
	hooks     []domain.SolveHooks
	store     ports.ResultStore
	locker    ports.Locker
	solverCfg domain.SolverConfig
	solveOpts []solve.Option
	now       func() time.Time
}

// Option defines a functional option for configuring the Planner.
type Option func(*Planner)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithHooks registers observability hooks. It may be given several times.
func WithHooks(hooks domain.SolveHooks) Option {
	return func(p *Planner) {
		p.hooks = append(p.hooks, hooks)
	}
}

// WithStore archives every successful run.
func WithStore(store ports.ResultStore) Option {
	return func(p *Planner) {
		p.store = store
	}
}

// WithLocker serializes labeled runs: two planners sharing a locker never solve
// the same label at once.
func WithLocker(locker ports.Locker) Option {
	return func(p *Planner) {
		p.locker = locker
	}
}

// WithSolverConfig sets the solver configuration used by every solve.
func WithSolverConfig(cfg domain.SolverConfig) Option {
	return func(p *Planner) {
		p.solverCfg = cfg
	}
}

// WithBackend forces every solve onto backend.
func WithBackend(backend ports.Backend) Option {
	return func(p *Planner) {
		p.solveOpts = append(p.solveOpts, solve.WithBackend(backend))
	}
}

// New creates a Planner on the in-process simplex backend.
func New(opts ...Option) *Planner {
	p := &Planner{
		solverCfg: domain.DefaultSolverConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// RunOptions select the model variant of one solve.
type RunOptions struct {
	Label string
	Model domain.ModelConfig
	// Truncate collapses the tree beyond that stage before building when set.
	Truncate *int
	// Chance relaxes hard rows into chance constraints, applied in order.
	Chance []chance.Constraint
	// Baseline also solves the expected-value problem, evaluates its first-stage plan
	// on the tree and reports the value of the stochastic solution.
	Baseline bool
	// WaitAndSee also solves every scenario with perfect information and reports the
	// expected value of perfect information.
	WaitAndSee bool
}

func (p *Planner) solver() *solve.Solver {
	opts := append([]solve.Option{solve.WithLogger(p.logger)}, p.solveOpts...)
	for _, h := range p.hooks {
		opts = append(opts, solve.WithHooks(h))
	}
	return solve.New(opts...)
}

// Assemble builds the program of one run without solving it: truncation first, then
// the coupled stage models, then chance constraints.
func (p *Planner) Assemble(ctx context.Context, tree *scenario.Tree, spec *domain.ResourceSpec, opts RunOptions) (*coupling.Assembly, error) {
	if tree == nil || spec == nil {
		return nil, fmt.Errorf("tree and resource spec are required: %w", domain.ErrInvalidSpec)
	}
	if opts.Truncate != nil {
		t, err := scenario.Truncate(tree, *opts.Truncate)
		if err != nil {
			return nil, err
		}
		tree = t
	}
	asm, err := coupling.Assemble(tree, spec, opts.Model)
	if err != nil {
		return nil, err
	}
	for _, c := range opts.Chance {
		if asm, err = chance.Apply(asm, c); err != nil {
			return nil, err
		}
	}

	ev := &domain.SolveEvent{
		Timestamp:   p.now(),
		Type:        domain.EventAssemble,
		Formulation: asm.Formulation,
		Variables:   asm.Program.NumVars(),
		Constraints: asm.Program.NumRows(),
	}
	for _, h := range p.hooks {
		domain.Emit(ctx, h.OnAssemble, ev)
	}
	p.logger.Debug("program assembled", "formulation", asm.Formulation,
		"nodes", asm.Tree.Len(), "vars", ev.Variables, "rows", ev.Constraints, "couplings", len(asm.Couplings))
	return asm, nil
}

// Solve assembles and solves one run and aggregates its outcome. Infeasible and
// unbounded programs are reported through the record status; solver failures are
// returned as errors. Successful runs are archived when a store is configured.
func (p *Planner) Solve(ctx context.Context, tree *scenario.Tree, spec *domain.ResourceSpec, opts RunOptions) (*domain.RunRecord, error) {
	if p.locker != nil && opts.Label != "" {
		unlock, err := p.locker.Lock(ctx, "run:"+opts.Label, p.lockTTL())
		if err != nil {
			return nil, fmt.Errorf("lock run %q: %w", opts.Label, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("failed to release run lock", "label", opts.Label, "err", err)
			}
		}()
	}

	asm, err := p.Assemble(ctx, tree, spec, opts)
	if err != nil {
		return nil, err
	}
	solver := p.solver()
	res, err := solver.Solve(ctx, asm, p.solverCfg)
	if err != nil {
		return nil, err
	}

	var aggOpts []outcome.Option
	if res.Optimal() && opts.Baseline {
		eev, err := p.expectedValuePlan(ctx, solver, spec, asm, opts)
		switch {
		case err != nil:
			return nil, fmt.Errorf("expected-value baseline: %w", err)
		case eev.Optimal():
			aggOpts = append(aggOpts, outcome.WithBaseline(eev))
		default:
			p.logger.Info("expected-value plan is not implementable on the tree", "status", eev.Status)
		}
	}
	if res.Optimal() && opts.WaitAndSee {
		ws, ok, err := p.waitAndSee(ctx, solver, asm.Tree, spec, opts)
		if err != nil {
			return nil, fmt.Errorf("wait-and-see: %w", err)
		}
		if ok {
			aggOpts = append(aggOpts, outcome.WithWaitAndSee(ws))
		}
	}

	out, err := outcome.Aggregate(asm.Tree, res, aggOpts...)
	if err != nil {
		return nil, err
	}
	rec := &domain.RunRecord{
		ID:        res.ID,
		Label:     opts.Label,
		CreatedAt: p.now().UTC(),
		Result:    res,
		Outcome:   out,
	}
	if p.store != nil {
		if err := p.store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("archive run %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// lockTTL covers the main solve plus the baseline and wait-and-see solves.
func (p *Planner) lockTTL() time.Duration {
	if p.solverCfg.Timeout <= 0 {
		return 10 * time.Minute
	}
	return 3*p.solverCfg.Timeout + time.Minute
}

// expectedValuePlan solves the stage-wise mean chain and evaluates its first-stage
// purchases on the assembled tree.
func (p *Planner) expectedValuePlan(ctx context.Context, solver *solve.Solver, spec *domain.ResourceSpec, asm *coupling.Assembly, opts RunOptions) (*domain.SolveResult, error) {
	evTree, err := scenario.ExpectedValuePath(asm.Tree)
	if err != nil {
		return nil, err
	}
	evAsm, err := coupling.Assemble(evTree, spec, domain.ModelConfig{Formulation: domain.FormulationNode, Recourse: opts.Model.Recourse})
	if err != nil {
		return nil, err
	}
	ev, err := solver.Solve(ctx, evAsm, p.solverCfg)
	if err != nil {
		return nil, err
	}
	if !ev.Optimal() {
		return ev, nil
	}
	fixed, err := solve.FixRoot(asm, ev.Bundles[evTree.Root().ID])
	if err != nil {
		return nil, err
	}
	return solver.Solve(ctx, fixed, p.solverCfg)
}

// waitAndSee returns Σ P(s)·z*(s) over the scenarios of tree. ok is false when a
// scenario has no optimum.
func (p *Planner) waitAndSee(ctx context.Context, solver *solve.Solver, tree *scenario.Tree, spec *domain.ResourceSpec, opts RunOptions) (float64, bool, error) {
	scenarios := tree.Scenarios()
	values := make([]float64, len(scenarios))
	optimal := make([]bool, len(scenarios))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, sc := range scenarios {
		g.Go(func() error {
			path, err := scenario.ScenarioPath(tree, sc.Leaf)
			if err != nil {
				return err
			}
			asm, err := coupling.Assemble(path, spec, domain.ModelConfig{Formulation: domain.FormulationNode, Recourse: opts.Model.Recourse})
			if err != nil {
				return err
			}
			res, err := solver.Solve(gctx, asm, p.solverCfg)
			if err != nil {
				return err
			}
			values[i], optimal[i] = sc.Prob*res.Objective, res.Optimal()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, false, err
	}

	total := 0.0
	for i := range values {
		if !optimal[i] {
			return 0, false, nil
		}
		total += values[i]
	}
	return total, true, nil
}

// Variant is one entry of a comparison. Transform, when set, derives the tree of the
// variant from the base tree (for instance the expected-value chain).
type Variant struct {
	Label     string
	Transform func(*scenario.Tree) (*scenario.Tree, error)
	Options   RunOptions
}

// DefaultVariants compares the full stochastic model with its truncation at
// truncateAt, the expected-value problem and the same model without recourse.
// The truncated and expected-value lines report the optimum of their own reduced
// tree, not their first-stage plan replayed on the full tree; Baseline covers that.
func DefaultVariants(base RunOptions, truncateAt int) []Variant {
	truncated := base
	truncated.Truncate = &truncateAt
	noRecourse := base
	noRecourse.Model.Recourse = false
	ev := base
	ev.Chance = nil
	ev.Baseline, ev.WaitAndSee = false, false

	return []Variant{
		{Label: "stochastic", Options: base},
		{Label: fmt.Sprintf("truncated at stage %d (own optimum)", truncateAt), Options: truncated},
		{Label: "expected value", Options: ev, Transform: scenario.ExpectedValuePath},
		{Label: "no recourse", Options: noRecourse},
	}
}

// Compare solves the variants concurrently. A variant that fails becomes a failed line
// of the table; only a canceled context aborts the comparison. Records are returned in
// variant order, nil for failed variants.
func (p *Planner) Compare(ctx context.Context, tree *scenario.Tree, spec *domain.ResourceSpec, variants ...Variant) (*outcome.Table, []*domain.RunRecord, error) {
	rows := make([]outcome.Row, len(variants))
	records := make([]*domain.RunRecord, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			rows[i].Label = v.Label
			t := tree
			if v.Transform != nil {
				var err error
				if t, err = v.Transform(tree); err != nil {
					rows[i].Err = err
					return nil
				}
			}
			opts := v.Options
			if opts.Label == "" {
				opts.Label = v.Label
			}
			rec, err := p.Solve(gctx, t, spec, opts)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					if gctx.Err() != nil {
						return err
					}
				}
				rows[i].Err = err
				p.logger.Warn("comparison variant failed", "variant", v.Label, "err", err)
				return nil
			}
			rows[i].Outcome = rec.Outcome
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return outcome.Compare(rows...), records, nil
}
