// Package validator checks a task graph before it is traversed.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/pkg/domain"
)

// Issue is one problem found in a graph.
type Issue struct {
	Path    []int
	Node    string
	Message string
}

func (i Issue) String() string {
	where := domain.FormatPath(i.Path)
	if where == "" {
		where = "root"
	}
	return fmt.Sprintf("%s (%s): %s", i.Node, where, i.Message)
}

// Error collects every issue of a graph.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	lines := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		lines[i] = is.String()
	}
	return fmt.Sprintf("found %d errors:\n- %s", len(e.Issues), strings.Join(lines, "\n- "))
}

func (e *Error) Unwrap() error { return domain.ErrState }

type entry struct {
	path  []int
	node  *domain.Node
	order int
}

// ValidateGraph reports structural problems and references that can never resolve:
// a non-container root, unnamed or duplicate sibling nodes, children on childless
// variants, empty scripts and prompts, asset paths escaping the project, and
// node_output references that are missing or not completed before their reader.
// References into a disaggregator's children are not checked since those are built at runtime.
func ValidateGraph(root *domain.Node) error {
	if root == nil {
		return &Error{Issues: []Issue{{Message: "graph is empty"}}}
	}

	var (
		issues []Issue
		nodes  []entry
	)
	report := func(path []int, n *domain.Node, format string, args ...any) {
		issues = append(issues, Issue{Path: path, Node: n.Name, Message: fmt.Sprintf(format, args...)})
	}

	if root.Kind() != domain.KindContainer {
		report(nil, root, "root must be a container, got %q", root.Kind())
	}

	var visit func(n *domain.Node, path []int)
	visit = func(n *domain.Node, path []int) {
		nodes = append(nodes, entry{path: path, node: n, order: len(nodes)})
		if n.Name == "" {
			report(path, n, "node has no name")
		}
		if n.Variant == nil {
			report(path, n, "node has no type")
		}
		if len(n.Children) > 0 && !n.AllowsChildren() {
			report(path, n, "%s nodes cannot have children", n.Kind())
		}
		switch v := n.Variant.(type) {
		case *domain.Script:
			if strings.TrimSpace(v.Source) == "" {
				report(path, n, "script source is empty")
			}
		case *domain.Model:
			if strings.TrimSpace(v.Prompt) == "" && len(v.PromptTags) == 0 {
				report(path, n, "model node has neither a prompt nor prompt tags")
			}
		case *domain.Disaggregator:
			if strings.TrimSpace(v.Prompt) == "" && len(v.PromptTags) == 0 {
				report(path, n, "disaggregator has neither a prompt nor prompt tags")
			}
			if v.MaxRetries < 0 {
				report(path, n, "max_retries must not be negative")
			}
		}

		seen := make(map[string]bool, len(n.Children))
		for i, c := range n.Children {
			if c.Name != "" && seen[c.Name] {
				report(append(slices.Clone(path), i), c, "duplicate sibling name %q", c.Name)
			}
			seen[c.Name] = true
			visit(c, append(slices.Clone(path), i))
		}
	}
	visit(root, []int{})

	for _, e := range nodes {
		for _, ref := range e.node.Inputs {
			if msg := checkReference(root, nodes, e, ref); msg != "" {
				report(e.path, e.node, "input %q: %s", ref, msg)
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return &Error{Issues: issues}
}

func checkReference(root *domain.Node, nodes []entry, reader entry, ref string) string {
	switch {
	case strings.HasPrefix(ref, runtime.AssetPrefix):
		if _, err := runtime.ProjectPath(".", strings.TrimPrefix(ref, runtime.AssetPrefix)); err != nil {
			return "path escapes the project root"
		}
		return ""
	case !strings.HasPrefix(ref, runtime.NodeOutputPrefix):
		return ""
	}

	cursor, names, err := runtime.SplitNodePath(ref, reader.path)
	if err != nil {
		return err.Error()
	}

	node := root
	for _, i := range cursor {
		node = node.Children[i]
	}
	for _, name := range names {
		if node.Kind() == domain.KindDisaggregator {
			return ""
		}
		idx := slices.IndexFunc(node.Children, func(c *domain.Node) bool { return c.Name == name })
		if idx < 0 {
			return fmt.Sprintf("no child %q under %q", name, node.Name)
		}
		cursor = append(cursor, idx)
		node = node.Children[idx]
	}

	for _, e := range nodes {
		if !slices.Equal(e.path, cursor) {
			continue
		}
		if e.order == reader.order {
			return "a node cannot read its own outputs"
		}
		if e.order > reader.order {
			return fmt.Sprintf("node %q runs after the reader", e.node.Name)
		}
	}
	return ""
}
