package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/internal/fsutil"
	"github.com/aretw0/tasktree/internal/planner"
	"github.com/aretw0/tasktree/internal/presentation/graph"
	"github.com/aretw0/tasktree/internal/presentation/tui"
	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/pkg/runner"
)

// ErrNoPrompts is returned when planning is requested without a prompt library.
var ErrNoPrompts = errors.New("planning requires prompts_dir to be configured")

// PlanOptions configures a planning session.
type PlanOptions struct {
	Task string
	// Output receives the planned graph; the extension picks JSON or YAML.
	Output string
	// Execute traverses the graph once it is planned.
	Execute  bool
	Headless bool
	Tags     []string

	In  io.Reader
	Out io.Writer
}

// Plan converses with the model until it produces a task graph, then writes
// and optionally executes it.
func Plan(ctx context.Context, stack *Stack, opts PlanOptions) error {
	if stack.Prompts == nil {
		return ErrNoPrompts
	}
	if strings.TrimSpace(opts.Task) == "" {
		return errors.New("task description is required")
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	printer := tui.NewPrinter(out, tui.WithMarkdown(tui.NewRenderer(tui.DefaultWrapWidth)))

	engOpts := append(stack.RuntimeOptions(),
		runtime.WithLifecycleHooks(printer.Hooks().Merge(stack.Metrics.Hooks())))
	plOpts := []planner.Option{
		planner.WithLogger(stack.Logger),
		planner.WithEngineOptions(engOpts...),
	}
	if len(opts.Tags) > 0 {
		plOpts = append(plOpts, planner.WithInitialTags(opts.Tags...))
	}
	if !opts.Headless && opts.In != nil {
		plOpts = append(plOpts, planner.WithAsk(runner.NewTextPrompter(opts.In, out).Ask))
	}
	p := planner.New(stack.Prompts, plOpts...)

	root, err := p.Plan(ctx, opts.Task)
	if err != nil {
		return err
	}
	fmt.Fprint(out, graph.GenerateTree(root, nil))

	if opts.Output != "" {
		data, err := compiler.Encode(root, formatFor(opts.Output))
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(opts.Output, data, 0644); err != nil {
			return fmt.Errorf("failed to write graph: %w", err)
		}
		printSystemMessage(out, "Graph written to %s.", opts.Output)
	}
	if !opts.Execute {
		return nil
	}

	eng, st, err := p.Execute(ctx, root)
	if eng != nil {
		defer eng.Close()
	}
	if st != nil {
		printer.Status(st)
	}
	return err
}

func formatFor(path string) compiler.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return compiler.FormatYAML
	}
	return compiler.FormatJSON
}
