package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// Overlay contains solve data to visualize on the tree.
type Overlay struct {
	// Path highlights a scenario, e.g. the worst one.
	Path []domain.NodeID
	// Notes appends a line to the label of a node, e.g. its first-stage purchase.
	Notes map[domain.NodeID]string
}

// GenerateMermaid produces a Mermaid flowchart of the tree. Shapes:
// - Root: ((Circle))
// - Synthetic averaged node: {{Hexagon}}
// - Leaf: ([Stadium])
// - Default: [Rectangle]
// Edges carry the conditional probability.
func GenerateMermaid(t *scenario.Tree, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, n := range t.BFS() {
		opener, closer := "[", "]"
		switch {
		case n.IsRoot():
			opener, closer = "((", "))"
		case n.Synthetic:
			opener, closer = "{{", "}}"
		case n.IsLeaf():
			opener, closer = "([", "])"
		}

		lines := []string{escape(n.Name)}
		for _, k := range n.Payload.Keys() {
			lines = append(lines, fmt.Sprintf("%s=%g", escape(k), n.Payload[k]))
		}
		if overlay != nil {
			if note, ok := overlay.Notes[n.ID]; ok {
				lines = append(lines, escape(note))
			}
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", mermaidID(n.ID), opener, strings.Join(lines, "<br/>"), closer)

		if !n.IsRoot() {
			fmt.Fprintf(&sb, "    %s -- \"p=%.3g\" --> %s\n", mermaidID(n.Parent), n.Prob, mermaidID(n.ID))
		}
	}

	if overlay != nil && len(overlay.Path) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast regardless of theme.
		sb.WriteString("    classDef path fill:#ffeb3b,stroke:#fbc02d,stroke-width:3px,color:#000;\n")
		seen := make(map[domain.NodeID]bool)
		for _, id := range overlay.Path {
			if seen[id] || id < 0 || int(id) >= t.Len() {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s path;\n", mermaidID(id))
		}
	}

	return sb.String()
}

func mermaidID(id domain.NodeID) string {
	return fmt.Sprintf("n%d", id)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
