package cli

import (
	"context"
	"fmt"

	"github.com/muesli/termenv"

	"github.com/aretw0/plantopt"
	"github.com/aretw0/plantopt/internal/presentation/tui"
)

// SolveOptions selects the extra solves of the solve command.
type SolveOptions struct {
	Label      string
	Baseline   bool
	WaitAndSee bool
}

// Solve runs one planning solve and prints its report.
func Solve(ctx context.Context, opts Options, so SolveOptions) (err error) {
	ws, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)

	planner := createPlanner(ws.cfg, ws.logger, ws.storage, opts.Debug)
	ro := runOptions(ws.cfg, so.Label)
	ro.Baseline, ro.WaitAndSee = so.Baseline, so.WaitAndSee

	rec, err := planner.Solve(ctx, ws.tree, ws.spec, ro)
	if err != nil {
		return handleExecutionError(err)
	}

	out := opts.out()
	if opts.JSON {
		return writeJSON(out, rec)
	}
	title := so.Label
	if title == "" {
		title = "Plan"
	}
	if err := render(out, tui.Report(title, rec.Result, rec.Outcome)); err != nil {
		return err
	}
	if ws.store != nil {
		profile := termenv.NewOutput(out).Profile
		printSystemMessage(out, "Run %s archived (%s).", rec.ID, tui.StatusLabel(profile, rec.Result.Status))
	}
	return nil
}

// Compare solves the default variants of the configured run and prints the table.
func Compare(ctx context.Context, opts Options, truncateAt int) (err error) {
	ws, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)

	planner := createPlanner(ws.cfg, ws.logger, ws.storage, opts.Debug)
	base := runOptions(ws.cfg, "")
	base.Truncate = nil
	table, _, err := planner.Compare(ctx, ws.tree, ws.spec, plantopt.DefaultVariants(base, truncateAt)...)
	if err != nil {
		return handleExecutionError(err)
	}

	if opts.JSON {
		return writeJSON(opts.out(), table)
	}
	return render(opts.out(), fmt.Sprintf("# Comparison\n\n%s", table.Markdown()))
}
