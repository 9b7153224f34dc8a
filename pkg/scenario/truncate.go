package scenario

import (
	"fmt"

	"github.com/aretw0/plantopt/pkg/domain"
)

// Truncate collapses everything after atStage. Every node at atStage that has
// descendants gets a single synthetic child carrying the probability-weighted mean
// payload of its descendant leaves, with conditional probability 1. Nodes up to
// atStage keep their names, payloads and probabilities. The source is not modified.
//
// Truncating at or beyond Depth returns a structurally identical copy.
func Truncate(t *Tree, atStage int) (*Tree, error) {
	if atStage < 0 {
		return nil, fmt.Errorf("truncate at stage %d: %w", atStage, domain.ErrMalformedTree)
	}

	remap := make(map[domain.NodeID]domain.NodeID)
	var nodes []Node
	for i := range t.nodes {
		src := t.nodes[i]
		if src.Stage > atStage {
			continue
		}
		id := domain.NodeID(len(nodes))
		remap[src.ID] = id
		n := src
		n.ID = id
		n.Children = nil
		n.Payload = src.Payload.Clone()
		if !n.IsRoot() {
			n.Parent = remap[src.Parent]
		}
		nodes = append(nodes, n)
	}
	for i := range t.nodes {
		src := &t.nodes[i]
		if src.Stage > atStage {
			continue
		}
		id := remap[src.ID]
		if src.Stage < atStage {
			for _, c := range src.Children {
				nodes[id].Children = append(nodes[id].Children, remap[c])
			}
			continue
		}
		if src.IsLeaf() {
			continue
		}

		leaves := t.DescendantLeaves(src.ID)
		payloads := make([]domain.Payload, len(leaves))
		weights := make([]float64, len(leaves))
		mass := 0.0
		for j, leaf := range leaves {
			payloads[j] = leaf.Payload
			weights[j] = t.uncond[leaf.ID]
			mass += weights[j]
		}
		prob := 1.0
		if pu := t.uncond[src.ID]; pu > 0 {
			prob = mass / pu
		}

		child := domain.NodeID(len(nodes))
		nodes[id].Children = []domain.NodeID{child}
		nodes = append(nodes, Node{
			ID:        child,
			Name:      src.Name + "_avg",
			Stage:     src.Stage + 1,
			Prob:      prob,
			Parent:    id,
			Payload:   meanPayload(payloads, weights),
			Synthetic: true,
		})
	}

	out, err := newTree(nodes, DefaultTolerance)
	if err != nil {
		return nil, fmt.Errorf("truncate at stage %d: %w", atStage, err)
	}
	out.truncation = &TruncationInfo{AtStage: atStage, Source: t}
	return out, nil
}
