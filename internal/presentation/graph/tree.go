package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/tasktree/pkg/domain"
)

var stateMarks = map[domain.State]string{
	domain.StateQueued:    " ",
	domain.StateReady:     ">",
	domain.StateExecuting: "~",
	domain.StateComplete:  "x",
	domain.StateError:     "!",
}

// GenerateTree renders the tree as indented text with a state mark per node.
// The active node is suffixed with an arrow.
func GenerateTree(root *domain.Node, overlay *Overlay) string {
	var sb strings.Builder
	var render func(n *domain.Node, path []int, prefix string, last bool)
	render = func(n *domain.Node, path []int, prefix string, last bool) {
		branch, next := "", ""
		if len(path) > 0 {
			branch, next = "├── ", "│   "
			if last {
				branch, next = "└── ", "    "
			}
		}
		mark, ok := stateMarks[n.State]
		if !ok {
			mark = " "
		}
		fmt.Fprintf(&sb, "%s%s[%s] %s (%s)", prefix, branch, mark, n.Name, n.Kind())
		if overlay != nil && !overlay.Done && slices.Equal(path, overlay.Cursor) {
			sb.WriteString(" <-")
		}
		if n.Message != "" {
			fmt.Fprintf(&sb, ": %s", n.Message)
		}
		sb.WriteString("\n")
		for i, c := range n.Children {
			render(c, append(slices.Clone(path), i), prefix+next, i == len(n.Children)-1)
		}
	}
	render(root, []int{}, "", true)
	return sb.String()
}
