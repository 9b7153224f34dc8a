package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/plantopt/internal/presentation/graph"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// Tree output formats.
const (
	FormatMermaid = "mermaid"
	FormatYAML    = "yaml"
)

// TreeOptions configures the tree command.
type TreeOptions struct {
	Format string
	// ResultID overlays an archived run: its worst scenario and first-stage purchase.
	ResultID string
}

// Tree prints the configured tree, truncated when requested.
func Tree(ctx context.Context, opts Options, to TreeOptions) (err error) {
	ws, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)

	t := ws.tree
	if ws.cfg.Truncate != nil {
		if t, err = scenario.Truncate(t, *ws.cfg.Truncate); err != nil {
			return err
		}
	}

	switch to.Format {
	case "", FormatMermaid:
		overlay, err := loadOverlay(ctx, ws, t, to.ResultID)
		if err != nil {
			return err
		}
		_, err = io.WriteString(opts.out(), graph.GenerateMermaid(t, overlay))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(scenario.Describe(t))
		if err != nil {
			return fmt.Errorf("failed to marshal tree: %w", err)
		}
		_, err = opts.out().Write(data)
		return err
	}
	return fmt.Errorf("unknown tree format %q", to.Format)
}

func loadOverlay(ctx context.Context, ws *workspace, t *scenario.Tree, id string) (*graph.Overlay, error) {
	if id == "" {
		return nil, nil
	}
	if ws.store == nil {
		return nil, fmt.Errorf("--result needs a result store")
	}
	rec, err := ws.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return overlayFor(t, rec), nil
}

// overlayFor highlights the path of the worst scenario of rec and notes its
// first-stage purchase on the root.
func overlayFor(t *scenario.Tree, rec *domain.RunRecord) *graph.Overlay {
	overlay := &graph.Overlay{Notes: map[domain.NodeID]string{}}
	out := rec.Outcome
	if out == nil || len(out.Scenarios) == 0 {
		return overlay
	}

	worst := out.Scenarios[0]
	for _, s := range out.Scenarios[1:] {
		if s.Value < worst.Value {
			worst = s
		}
	}
	// Node IDs are only meaningful on the tree the run was solved on.
	if path, err := t.PathToRoot(worst.Leaf); err == nil && path[len(path)-1].Name == worst.Name {
		for _, n := range path {
			overlay.Path = append(overlay.Path, n.ID)
		}
	}

	if out.Root != nil && len(out.Root.Purchase) > 0 {
		var parts []string
		for _, k := range slices.Sorted(maps.Keys(out.Root.Purchase)) {
			parts = append(parts, fmt.Sprintf("buy %s %.1f", k, out.Root.Purchase[k]))
		}
		overlay.Notes[out.Root.Node] = strings.Join(parts, ", ")
	}
	return overlay
}
