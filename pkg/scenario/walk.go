package scenario

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aretw0/plantopt/pkg/domain"
)

// WalkVar is one payload key driven by a clipped Gaussian random walk.
type WalkVar struct {
	Key     string  `json:"key" yaml:"key"`
	Start   float64 `json:"start" yaml:"start"`
	StdDev  float64 `json:"std_dev" yaml:"std_dev"`
	// MaxStep clips every step to [-MaxStep, MaxStep]; 0 keeps the value fixed.
	MaxStep float64 `json:"max_step" yaml:"max_step"`
	// Unbounded disables clipping.
	Unbounded bool `json:"unbounded,omitempty" yaml:"unbounded,omitempty"`
}

// RandomWalkSpec generates a uniform tree where every child perturbs its parent's
// values by an independent step.
type RandomWalkSpec struct {
	Vars []WalkVar `json:"vars" yaml:"vars"`
	// Stages counts the root, so Stages=3 yields a depth-2 tree.
	Stages       int    `json:"stages" yaml:"stages"`
	BranchFactor int    `json:"branch_factor" yaml:"branch_factor"`
	Seed         uint64 `json:"seed" yaml:"seed"`
	// Places rounds each step to that many decimals when set.
	Places *int `json:"places,omitempty" yaml:"places,omitempty"`
}

// RandomWalk builds a tree with equal conditional probabilities. The same seed always
// yields the same tree.
func RandomWalk(spec RandomWalkSpec, opts ...Option) (*Tree, error) {
	if spec.Stages < 1 {
		return nil, &domain.MalformedTreeError{Node: domain.NoParent, Reason: fmt.Sprintf("random walk needs at least one stage, got %d", spec.Stages)}
	}
	src := rand.NewPCG(spec.Seed, spec.Seed^0x9e3779b97f4a7c15)

	root := make(domain.Payload, len(spec.Vars))
	for _, v := range spec.Vars {
		root[v.Key] = v.Start
	}

	step := func(v WalkVar) float64 {
		d := distuv.Normal{Mu: 0, Sigma: v.StdDev, Src: src}.Rand()
		if !v.Unbounded {
			d = math.Max(-v.MaxStep, math.Min(v.MaxStep, d))
		}
		if spec.Places != nil {
			scale := math.Pow(10, float64(*spec.Places))
			d = math.Round(d*scale) / scale
		}
		return d
	}

	bs := BranchingSpec{Root: root}
	for range spec.Stages - 1 {
		bs.Stages = append(bs.Stages, StageSpec{
			Branches: spec.BranchFactor,
			Branch: func(parent *Node, _ int) (float64, domain.Payload) {
				p := make(domain.Payload, len(spec.Vars))
				for _, v := range spec.Vars {
					p[v.Key] = parent.Payload[v.Key] + step(v)
				}
				return 1 / float64(spec.BranchFactor), p
			},
		})
	}
	return Build(bs, opts...)
}
