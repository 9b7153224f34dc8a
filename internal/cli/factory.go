package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/plantopt"
	"github.com/aretw0/plantopt/internal/adapters/file"
	"github.com/aretw0/plantopt/internal/adapters/memory"
	"github.com/aretw0/plantopt/internal/adapters/redis"
	"github.com/aretw0/plantopt/internal/config"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/persistence/middleware"
	"github.com/aretw0/plantopt/pkg/ports"
)

// Storage is the opened result store with what travels with it.
type Storage struct {
	// Store is nil for kind none.
	Store ports.ResultStore
	// Locker is set for the redis store, so that processes sharing it serialize
	// runs with the same label.
	Locker ports.Locker
	Close  func() error
}

// NewStore opens the result store selected by cfg, sealed with the encryption
// middleware when a key is configured.
func NewStore(ctx context.Context, cfg config.StoreConfig) (*Storage, error) {
	st, err := openStore(ctx, cfg)
	if err != nil || st.Store == nil {
		return st, err
	}
	active, fallback, err := cfg.Keys()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store: %w: %w", domain.ErrInvalidSpec, err)
	}
	if active == nil {
		return st, nil
	}
	seal, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	st.Store = middleware.Chain(st.Store, seal)
	return st, nil
}

func noop() error { return nil }

func openStore(ctx context.Context, cfg config.StoreConfig) (*Storage, error) {
	switch cfg.Kind {
	case "", config.StoreNone:
		return &Storage{Close: noop}, nil
	case config.StoreMemory:
		return &Storage{Store: memory.New(), Close: noop}, nil
	case config.StoreFile:
		return &Storage{Store: file.New(cfg.Path), Close: noop}, nil
	case config.StoreRedis:
		var opts []redis.Option
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		store := redis.New(cfg.Addr, cfg.Password, cfg.DB, opts...)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis store at %s: %w", cfg.Addr, err)
		}
		return &Storage{Store: store, Locker: store.Locker(), Close: store.Close}, nil
	}
	return nil, fmt.Errorf("unknown store kind %q: %w", cfg.Kind, domain.ErrInvalidSpec)
}

// createPlanner initializes a planner with standard CLI conventions.
// A nil storage plans without archiving.
func createPlanner(cfg *config.Config, logger *slog.Logger, storage *Storage, debug bool, hooks ...domain.SolveHooks) *plantopt.Planner {
	opts := []plantopt.Option{
		plantopt.WithLogger(logger),
		plantopt.WithSolverConfig(cfg.Solver),
	}
	if storage != nil && storage.Store != nil {
		opts = append(opts, plantopt.WithStore(storage.Store))
	}
	if storage != nil && storage.Locker != nil {
		opts = append(opts, plantopt.WithLocker(storage.Locker))
	}
	if debug {
		opts = append(opts, plantopt.WithHooks(createDebugHooks(logger)))
	}
	for _, h := range hooks {
		opts = append(opts, plantopt.WithHooks(h))
	}
	return plantopt.New(opts...)
}

// runOptions maps the configuration onto the options of one planner run.
func runOptions(cfg *config.Config, label string) plantopt.RunOptions {
	return plantopt.RunOptions{
		Label:    label,
		Model:    cfg.Model,
		Truncate: cfg.Truncate,
		Chance:   cfg.Chance,
	}
}
