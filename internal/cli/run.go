package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/aretw0/plantopt/internal/config"
	"github.com/aretw0/plantopt/internal/presentation/tui"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/ports"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// Options contains the configuration shared by every command.
type Options struct {
	ConfigPath string
	// Resources and Tree override the paths of the configuration file.
	Resources string
	Tree      string
	// Truncate overrides the truncation stage of the configuration file.
	Truncate *int
	Debug    bool
	JSON     bool
	Out      io.Writer
}

// workspace is what a command needs once the configuration is loaded.
type workspace struct {
	cfg     *config.Config
	logger  *slog.Logger
	spec    *domain.ResourceSpec
	tree    *scenario.Tree
	store   ports.ResultStore
	storage *Storage
	close   func() error
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// open loads the configuration, the logger and the store, plus the resource spec
// and the tree when inputs is set.
func open(ctx context.Context, opts Options, inputs bool) (*workspace, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Resources != "" {
		cfg.Resources = opts.Resources
	}
	if opts.Tree != "" {
		cfg.Tree = opts.Tree
	}
	if opts.Truncate != nil {
		cfg.Truncate = opts.Truncate
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, err := createLogger(cfg.Log, opts.Debug)
	if err != nil {
		return nil, err
	}
	ws := &workspace{cfg: cfg, logger: logger, close: func() error { return nil }}

	if inputs {
		if cfg.Resources == "" || cfg.Tree == "" {
			return nil, fmt.Errorf("resources and tree are required (set them in %s or pass --resources and --tree): %w",
				config.DefaultPath, domain.ErrInvalidSpec)
		}
		if ws.spec, err = config.LoadResourceSpec(cfg.Resources); err != nil {
			return nil, err
		}
		if ws.tree, err = config.LoadTree(cfg.Tree); err != nil {
			return nil, err
		}
	}

	if ws.storage, err = NewStore(ctx, cfg.Store); err != nil {
		return nil, err
	}
	ws.store, ws.close = ws.storage.Store, ws.storage.Close
	logger.Debug("workspace ready", "config", opts.ConfigPath, "store", cfg.Store.Kind, "backend", cfg.Solver.Backend)
	return ws, nil
}

// render writes markdown to the output, styled with glamour on a terminal.
func render(w io.Writer, markdown string) error {
	renderer := tui.Plain
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		width, _, err := term.GetSize(int(f.Fd()))
		if err != nil || width > 120 {
			width = 120
		}
		renderer = tui.NewRenderer(width)
	}
	text, err := renderer(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func closeWorkspace(ws *workspace, err *error) {
	if cerr := ws.close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}
