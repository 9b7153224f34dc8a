// Package coupling ties node models together so that no decision depends on
// information revealed after it is taken.
//
// In the node formulation every node is declared once and shared by all scenarios
// through it, so nothing needs to be added. In the scenario formulation every
// scenario gets its own copy of each node on its path and the copies of a shared
// node are forced equal with explicit rows. The root is declared once in both.
package coupling

import (
	"fmt"
	"slices"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/lp"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/aretw0/plantopt/pkg/stage"
)

// FamilyNonAnticipativity tags the equality rows added by the scenario formulation.
const FamilyNonAnticipativity = "nonanticipativity"

// Constraint forces the decisions of several scenario copies of one node to be equal.
// Pairs[i] = {reference, other}.
type Constraint struct {
	Node      domain.NodeID
	Scenarios []domain.NodeID // copies involved, reference first
	Pairs     [][2]lp.Var
}

// Couple derives the coupling constraints of a set of node models.
func Couple(tree *scenario.Tree, models map[stage.Key]*stage.NodeVars, f domain.Formulation) ([]Constraint, error) {
	switch f {
	case domain.FormulationNode, "":
		return nil, nil
	case domain.FormulationScenario:
	default:
		return nil, fmt.Errorf("formulation %q: %w", f, domain.ErrInvalidSpec)
	}

	copies := make(map[domain.NodeID][]domain.NodeID)
	for key := range models {
		if key.Copy != domain.NoScenario {
			copies[key.Node] = append(copies[key.Node], key.Copy)
		}
	}

	var out []Constraint
	for _, n := range tree.BFS() {
		scens := copies[n.ID]
		if len(scens) < 2 {
			continue
		}
		slices.Sort(scens)
		ref := models[stage.Key{Node: n.ID, Copy: scens[0]}]
		refVars := ref.Decisions()

		c := Constraint{Node: n.ID, Scenarios: scens}
		for _, s := range scens[1:] {
			other := models[stage.Key{Node: n.ID, Copy: s}]
			vars := other.Decisions()
			if len(vars) != len(refVars) {
				return nil, fmt.Errorf("node %d: copies %d and %d declare different decisions", n.ID, scens[0], s)
			}
			for i := range vars {
				c.Pairs = append(c.Pairs, [2]lp.Var{refVars[i], vars[i]})
			}
		}
		out = append(out, c)
	}
	return out, nil
}
