package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/tasktree"
	"github.com/aretw0/tasktree/internal/presentation/graph"
)

// Graph output formats.
const (
	GraphMermaid = "mermaid"
	GraphTree    = "tree"
	GraphJSON    = "json"
	GraphYAML    = "yaml"
)

// GraphOptions configures a graph rendering.
type GraphOptions struct {
	GraphPath string
	Format    string
	// TaskID overlays the traversal saved under this checkpoint.
	TaskID string
	Out    io.Writer
}

// RenderGraph writes the graph in the requested format. With a task ID the
// saved node states and cursor are drawn over it.
func RenderGraph(ctx context.Context, stack *Stack, opts GraphOptions) error {
	eng, err := stack.NewEngine(opts.GraphPath)
	if err != nil {
		return err
	}
	defer eng.Close()

	var overlay *graph.Overlay
	if opts.TaskID != "" {
		ok, err := eng.Resume(ctx, opts.TaskID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("checkpoint %q not found", opts.TaskID)
		}
		st := eng.Status()
		overlay = &graph.Overlay{Cursor: st.Cursor, Done: st.Done}
	}

	var out string
	switch strings.ToLower(opts.Format) {
	case "", GraphMermaid:
		out = graph.GenerateMermaid(eng.Root(), overlay)
	case GraphTree:
		out = graph.GenerateTree(eng.Root(), overlay)
	case GraphJSON, GraphYAML:
		data, err := eng.EncodeGraph(tasktree.Format(strings.ToLower(opts.Format)))
		if err != nil {
			return err
		}
		out = string(data)
	default:
		return fmt.Errorf("unknown graph format %q", opts.Format)
	}
	_, err = io.WriteString(opts.Out, out)
	return err
}

// Validate loads and checks the graph at path without executing it.
func Validate(path string, out io.Writer) error {
	eng, err := tasktree.New(path)
	if err != nil {
		return err
	}
	defer eng.Close()
	fmt.Fprintf(out, "Graph %q is valid (%d nodes).\n", eng.Name, len(eng.Status().Nodes))
	return nil
}
