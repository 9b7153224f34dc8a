package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/plantopt/internal/config"
	"github.com/aretw0/plantopt/internal/presentation/tui"
	"github.com/aretw0/plantopt/pkg/domain"
)

// ListResults prints the archived runs, most recent first.
func ListResults(ctx context.Context, opts Options) (err error) {
	ws, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)
	if ws.store == nil {
		return fmt.Errorf("no result store configured (set store.kind in %s)", displayPath(opts))
	}

	ids, err := ws.store.List(ctx)
	if err != nil {
		return err
	}
	if opts.JSON {
		if ids == nil {
			ids = []string{}
		}
		return writeJSON(opts.out(), ids)
	}

	var sb strings.Builder
	sb.WriteString("| run | label | created | status | expected |\n|---|---|---|---|---:|\n")
	for _, id := range ids {
		rec, err := ws.store.Load(ctx, id)
		if err != nil {
			ws.logger.Warn("skipping unreadable run", "id", id, "err", err)
			continue
		}
		expected := "-"
		if rec.Outcome != nil && rec.Outcome.Status == domain.StatusOptimal {
			expected = fmt.Sprintf("%.2f", rec.Outcome.ExpectedObjective)
		}
		status := ""
		if rec.Result != nil {
			status = string(rec.Result.Status)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n", rec.ID, rec.Label, rec.CreatedAt.Format("2006-01-02 15:04:05"), status, expected)
	}
	return render(opts.out(), sb.String())
}

// ShowResult prints the report of one archived run.
func ShowResult(ctx context.Context, opts Options, id string) (err error) {
	ws, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)
	if ws.store == nil {
		return fmt.Errorf("no result store configured (set store.kind in %s)", displayPath(opts))
	}

	rec, err := ws.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(opts.out(), rec)
	}
	title := rec.Label
	if title == "" {
		title = "Run " + rec.ID
	}
	return render(opts.out(), tui.Report(title, rec.Result, rec.Outcome))
}

// DeleteResult removes an archived run.
func DeleteResult(ctx context.Context, opts Options, id string) (err error) {
	ws, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)
	if ws.store == nil {
		return fmt.Errorf("no result store configured (set store.kind in %s)", displayPath(opts))
	}
	if err := ws.store.Delete(ctx, id); err != nil {
		return err
	}
	printSystemMessage(opts.out(), "Run %s deleted.", id)
	return nil
}

func displayPath(opts Options) string {
	if opts.ConfigPath == "" {
		return config.DefaultPath
	}
	return opts.ConfigPath
}
