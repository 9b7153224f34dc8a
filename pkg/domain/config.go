package domain

import "time"

// Backend names.
const (
	BackendSimplex = "simplex"
	BackendGLPK    = "glpk"
)

// DefaultTolerance is the numerical tolerance used when none is configured.
const DefaultTolerance = 1e-9

// SolverConfig is passed explicitly on every solve.
type SolverConfig struct {
	Backend   string        `json:"backend" yaml:"backend"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	Tolerance float64       `json:"tolerance" yaml:"tolerance"`
	Duals     bool          `json:"duals" yaml:"duals"`
	// Command overrides the solver executable of process backends.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
}

// DefaultSolverConfig returns the in-process simplex with a one minute timeout.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Backend:   BackendSimplex,
		Timeout:   time.Minute,
		Tolerance: DefaultTolerance,
	}
}

// ModelConfig selects the model variant built on a tree.
type ModelConfig struct {
	Formulation Formulation `json:"formulation" yaml:"formulation"`
	// Recourse enables spot purchases at non-root nodes.
	Recourse bool `json:"recourse" yaml:"recourse"`
}
