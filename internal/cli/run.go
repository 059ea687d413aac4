package cli

import (
	"context"
	"errors"
	"io"

	"github.com/aretw0/tasktree"
	"github.com/aretw0/tasktree/internal/presentation/tui"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/runner"
)

// RunOptions configures one task run.
type RunOptions struct {
	GraphPath string
	// TaskID names the checkpoint. Defaults to the graph name.
	TaskID string
	// Resume continues from the saved checkpoint when one exists.
	Resume bool
	// Fresh discards the saved checkpoint before starting.
	Fresh    bool
	// Headless stops at the first failed or assist node. A nil In implies it.
	Headless bool
	Quiet    bool
	// Signals lets SIGINT pause the run with a checkpoint.
	Signals bool

	In  io.Reader
	Out io.Writer
}

// Run plays the graph through the interactive runner, printing node
// transitions and model output as they happen. Operator interrupts and quits
// are not errors; the checkpoint already holds the progress.
func Run(ctx context.Context, stack *Stack, opts RunOptions) error {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	printer := tui.NewPrinter(out, tui.WithMarkdown(tui.NewRenderer(tui.DefaultWrapWidth)))

	var extra []tasktree.Option
	if !opts.Quiet {
		extra = append(extra, tasktree.WithLifecycleHooks(printer.Hooks()))
	}
	eng, err := stack.NewEngine(opts.GraphPath, extra...)
	if err != nil {
		return err
	}
	defer eng.Close()

	id := opts.TaskID
	if id == "" {
		id = eng.Name
	}
	if err := prepareCheckpoint(ctx, eng, id, opts, out); err != nil {
		return err
	}

	runnerOpts := []runner.Option{
		runner.WithTaskID(id),
		runner.WithOutput(out),
		runner.WithLogger(stack.Logger),
		runner.WithSignals(opts.Signals),
	}
	if !opts.Headless && opts.In != nil {
		runnerOpts = append(runnerOpts, runner.WithPrompter(runner.NewTextPrompter(opts.In, out)))
	}
	err = runner.New(eng, runnerOpts...).Run(ctx)
	if !opts.Quiet {
		printer.Status(eng.Status())
	}
	if errors.Is(err, runner.ErrInterrupted) || errors.Is(err, runner.ErrQuit) {
		return nil
	}
	return err
}

func prepareCheckpoint(ctx context.Context, eng *tasktree.Engine, id string, opts RunOptions, out io.Writer) error {
	if opts.Fresh {
		if err := eng.Discard(ctx, id); err != nil && !errors.Is(err, domain.ErrCheckpointNotFound) {
			return err
		}
	}
	if !opts.Resume {
		return nil
	}
	ok, err := eng.Resume(ctx, id)
	if err != nil {
		return err
	}
	if opts.Quiet {
		return nil
	}
	if ok {
		st := eng.Status()
		where := domain.FormatPath(st.Cursor)
		if where == "" {
			where = "root"
		}
		printSystemMessage(out, "Resuming %q at %s.", id, where)
	} else {
		printSystemMessage(out, "No checkpoint %q, starting fresh.", id)
	}
	return nil
}
