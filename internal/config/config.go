// Package config loads the run configuration, resource specs and scenario trees.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/plantopt/pkg/chance"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "plantopt.yaml"

// Store kinds.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// StoreConfig selects where solved runs are archived.
type StoreConfig struct {
	Kind     string        `mapstructure:"kind"`
	Path     string        `mapstructure:"path"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	// EncryptionKey, base64 of 32 bytes, seals results and outcomes at rest.
	EncryptionKey string `mapstructure:"encryption_key"`
	// FallbackKeys are previous encryption keys still accepted for reading.
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

// Keys decodes the encryption keys. active is nil when encryption is off.
func (s StoreConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, errors.New("fallback_keys need an encryption_key")
		}
		return nil, nil, nil
	}
	decode := func(key, v string) ([]byte, error) {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%s is not base64: %w", key, err)
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", key, len(b))
		}
		return b, nil
	}
	if active, err = decode("encryption_key", s.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for i, v := range s.FallbackKeys {
		k, err := decode(fmt.Sprintf("fallback_keys[%d]", i), v)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, k)
	}
	return active, fallback, nil
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Config is the content of plantopt.yaml.
type Config struct {
	// Resources and Tree are file paths, resolved against the config file directory.
	Resources string              `mapstructure:"resources"`
	Tree      string              `mapstructure:"tree"`
	Model     domain.ModelConfig  `mapstructure:"model"`
	Solver    domain.SolverConfig `mapstructure:"solver"`
	// Truncate collapses the tree beyond that stage before building when set.
	Truncate *int                `mapstructure:"truncate"`
	Chance   []chance.Constraint `mapstructure:"chance"`
	Store    StoreConfig         `mapstructure:"store"`
	Log      LogConfig           `mapstructure:"log"`
	Server   ServerConfig        `mapstructure:"server"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Model:  domain.ModelConfig{Formulation: domain.FormulationNode},
		Solver: domain.DefaultSolverConfig(),
		Store:  StoreConfig{Kind: StoreNone},
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{Addr: ":8080", ReadTimeout: 30 * time.Second, WriteTimeout: 5 * time.Minute},
	}
}

// Load reads a YAML or JSON configuration file over the defaults. A missing file at
// DefaultPath yields the defaults; any other missing file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	raw, err := readMap(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := Decode(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	base := filepath.Dir(path)
	cfg.Resources = resolve(base, cfg.Resources)
	cfg.Tree = resolve(base, cfg.Tree)
	if cfg.Store.Kind == StoreFile {
		cfg.Store.Path = resolve(base, cfg.Store.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode maps a generic document onto out. Durations accept Go syntax ("90s") and
// unknown keys are rejected.
func Decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	fail := func(key, reason string, value any) {
		errs = append(errs, &domain.ValidationError{Key: key, Reason: reason, Value: value})
	}

	switch c.Model.Formulation {
	case "", domain.FormulationNode, domain.FormulationScenario:
	default:
		fail("model.formulation", "must be node or scenario", c.Model.Formulation)
	}
	switch c.Solver.Backend {
	case "", domain.BackendSimplex, domain.BackendGLPK:
	default:
		fail("solver.backend", "unknown backend", c.Solver.Backend)
	}
	if c.Solver.Timeout < 0 {
		fail("solver.timeout", "must not be negative", c.Solver.Timeout)
	}
	if c.Solver.Tolerance < 0 {
		fail("solver.tolerance", "must not be negative", c.Solver.Tolerance)
	}
	if c.Truncate != nil && *c.Truncate < 0 {
		fail("truncate", "must not be negative", *c.Truncate)
	}
	for i, cc := range c.Chance {
		if cc.Family == "" {
			fail(fmt.Sprintf("chance[%d].family", i), "is required", nil)
		}
		if !(cc.Alpha > 0 && cc.Alpha < 1) {
			fail(fmt.Sprintf("chance[%d].alpha", i), "must be in (0, 1)", cc.Alpha)
		}
	}
	switch c.Store.Kind {
	case "", StoreNone, StoreMemory:
	case StoreFile:
	case StoreRedis:
		if c.Store.Addr == "" {
			fail("store.addr", "is required for the redis store", nil)
		}
	default:
		fail("store.kind", "must be none, memory, file or redis", c.Store.Kind)
	}
	if _, _, err := c.Store.Keys(); err != nil {
		fail("store.encryption_key", err.Error(), nil)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		fail("log.format", "must be text or json", c.Log.Format)
	}

	if len(errs) == 0 {
		return nil
	}
	return &domain.AggregateError{Errors: errs}
}

// LoadResourceSpec reads and validates a ResourceSpec from YAML or JSON.
func LoadResourceSpec(path string) (*domain.ResourceSpec, error) {
	var spec domain.ResourceSpec
	if err := readInto(path, &spec); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("resource spec %s: %w", path, err)
	}
	return &spec, nil
}

// LoadTree reads a tree description from YAML or JSON and builds it.
func LoadTree(path string, opts ...scenario.Option) (*scenario.Tree, error) {
	var desc scenario.Description
	if err := readInto(path, &desc); err != nil {
		return nil, err
	}
	tree, err := desc.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("tree %s: %w", path, err)
	}
	return tree, nil
}

// WriteTree writes the explicit description of t as YAML.
func WriteTree(path string, t *scenario.Tree) error {
	data, err := yaml.Marshal(scenario.Describe(t))
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func readMap(path string) (map[string]any, error) {
	raw := map[string]any{}
	if err := readInto(path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// readInto decodes JSON for .json files and YAML otherwise.
func readInto(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
