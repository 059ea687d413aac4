package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/tasktree/pkg/domain"
)

// Overlay marks the active node on the rendered graph.
type Overlay struct {
	Cursor []int
	Done   bool
}

// GenerateMermaid produces a Mermaid flowchart of the tree rooted at root.
// Shapes follow the node kind:
// - Container: [[Subroutine]]
// - Model: ([Stadium])
// - Assist: {{Hexagon}}
// - Disaggregator: [/Parallelogram/]
// - Script: [Rectangle]
// Node states become classes; the overlay adds the current class.
func GenerateMermaid(root *domain.Node, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	byState := make(map[domain.State][]string)
	walk(root, nil, func(path []int, n *domain.Node) {
		id := mermaidID(path)
		opener, closer := shape(n.Kind())

		label := escapeLabel(n.Name)
		if n.Description != "" {
			label += "<br/><small>" + escapeLabel(n.Description) + "</small>"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, label, closer)

		for i := range n.Children {
			fmt.Fprintf(&sb, "    %s --> %s\n", id, mermaidID(append(slices.Clone(path), i)))
		}
		if n.State != "" && n.State != domain.StateQueued {
			byState[n.State] = append(byState[n.State], id)
		}
	})

	if overlay == nil {
		return sb.String()
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	sb.WriteString("    classDef complete fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef error fill:#ffebee,stroke:#c62828,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef executing fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	for _, st := range []domain.State{domain.StateComplete, domain.StateError, domain.StateExecuting} {
		if ids := byState[st]; len(ids) > 0 {
			fmt.Fprintf(&sb, "    class %s %s;\n", strings.Join(ids, ","), st)
		}
	}
	if !overlay.Done {
		fmt.Fprintf(&sb, "    class %s current;\n", mermaidID(overlay.Cursor))
	}
	return sb.String()
}

func shape(k domain.Kind) (string, string) {
	switch k {
	case domain.KindContainer:
		return "[[", "]]"
	case domain.KindModel:
		return "([", "])"
	case domain.KindAssist:
		return "{{", "}}"
	case domain.KindDisaggregator:
		return "[/", "/]"
	}
	return "[", "]"
}

// mermaidID names a node by its path: n for the root, n_0_2 for a grandchild.
func mermaidID(path []int) string {
	var sb strings.Builder
	sb.WriteString("n")
	for _, p := range path {
		fmt.Fprintf(&sb, "_%d", p)
	}
	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func walk(n *domain.Node, path []int, fn func([]int, *domain.Node)) {
	fn(path, n)
	for i, c := range n.Children {
		walk(c, append(slices.Clone(path), i), fn)
	}
}
