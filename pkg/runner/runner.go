package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/tasktree"
	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/pkg/domain"
)

var (
	// ErrInterrupted is returned when a signal stopped the run.
	ErrInterrupted = errors.New("interrupted")
	// ErrQuit is returned when the operator chose to stop.
	ErrQuit = errors.New("stopped by operator")
)

// StoppedError reports the node a headless run stopped at.
type StoppedError struct {
	Path    string
	Node    string
	Kind    domain.Kind
	Message string
}

func (e *StoppedError) Error() string {
	if e.Kind == domain.KindAssist {
		return fmt.Sprintf("node %q needs assistance: %s", e.Node, e.Message)
	}
	return fmt.Sprintf("node %q failed: %s", e.Node, e.Message)
}

func (e *StoppedError) Unwrap() error {
	if e.Kind == domain.KindAssist {
		return domain.ErrAssistanceRequired
	}
	return domain.ErrExecution
}

// Engine is the part of *tasktree.Engine the runner drives.
type Engine interface {
	Play(ctx context.Context) (*domain.Status, error)
	ResolveAssistance(ctx context.Context, path []int) (*domain.Status, error)
	Save(ctx context.Context, id string) error
}

// Stopper ends in-flight model streams cooperatively. *tasktree.Engine
// satisfies it; StopStreams reports false when nothing can be stopped.
type Stopper interface {
	StopStreams() bool
	ResumeStreams()
}

// Runner handles the execution loop of a traversal.
type Runner struct {
	engine   Engine
	prompter Prompter
	out      io.Writer
	logger   *slog.Logger
	taskID   string
	signals  bool
	stopper  Stopper
}

// New creates a Runner. Without WithPrompter it is headless: the first node
// that stops the traversal ends the run with a *StoppedError.
func New(engine Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:  engine,
		out:     io.Discard,
		logger:  logging.NewNop(),
		signals: true,
	}
	if s, ok := engine.(Stopper); ok {
		r.stopper = s
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plays the traversal until it is exhausted, the operator quits, or a
// signal arrives. A checkpoint is saved after every pass.
func (r *Runner) Run(ctx context.Context) error {
	var sig *interrupts
	if r.signals {
		sig = listen(r.stopper)
		defer sig.stop()
	}

	for {
		runCtx, cancel := sig.play(ctx)
		st, err := r.engine.Play(runCtx)
		interrupted := (runCtx.Err() != nil || sig.interrupted()) && ctx.Err() == nil
		cancel()

		if saveErr := r.save(ctx); saveErr != nil {
			return saveErr
		}
		if interrupted {
			r.logger.Info("Run interrupted", "task", r.taskID, "signal", sig.Signal())
			r.printf("Interrupted.%s\n", r.resumeHint())
			return ErrInterrupted
		}
		if err != nil {
			return err
		}
		if st.Done {
			r.logger.Info("Traversal complete", "task", r.taskID)
			return nil
		}

		stopped := stoppedAt(st)
		if stopped == nil {
			// Play only returns early on a node error.
			return fmt.Errorf("%w: traversal paused without a failed node", domain.ErrState)
		}
		if r.prompter == nil {
			return stopped
		}
		if err := r.decide(ctx, sig, st.Cursor, stopped); err != nil {
			return err
		}
	}
}

// decide asks the operator what to do with the node the traversal stopped at.
func (r *Runner) decide(ctx context.Context, sig *interrupts, cursor []int, stopped *StoppedError) error {
	question := fmt.Sprintf("%s\n[r]etry or [q]uit?", stopped.Error())
	if stopped.Kind == domain.KindAssist {
		question = fmt.Sprintf("Assistance needed at %q:\n%s\n[d]one or [q]uit?", stopped.Node, stopped.Message)
	}

	for {
		askCtx, cancel := sig.pass(ctx)
		answer, err := r.prompter.Ask(askCtx, question)
		if err != nil && sig != nil {
			sig.settle(askCtx)
		}
		interrupted := askCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if interrupted {
			r.printf("Interrupted.%s\n", r.resumeHint())
			return ErrInterrupted
		}
		if errors.Is(err, io.EOF) {
			return ErrQuit
		}
		if err != nil {
			return fmt.Errorf("input error: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "q", "quit", "exit":
			r.printf("Stopped.%s\n", r.resumeHint())
			return ErrQuit
		case "r", "retry":
			if stopped.Kind != domain.KindAssist {
				return nil
			}
		case "d", "done", "y", "yes":
			if stopped.Kind == domain.KindAssist {
				_, err := r.engine.ResolveAssistance(ctx, cursor)
				return err
			}
		}
		question = "Please answer with one of the listed options."
	}
}

func (r *Runner) save(ctx context.Context) error {
	if r.taskID == "" {
		return nil
	}
	err := r.engine.Save(context.WithoutCancel(ctx), r.taskID)
	if errors.Is(err, tasktree.ErrNoCheckpoints) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("critical persistence error: %w", err)
	}
	return nil
}

func (r *Runner) resumeHint() string {
	if r.taskID == "" {
		return ""
	}
	return fmt.Sprintf(" Resume with --resume --task-id %s.", r.taskID)
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// stoppedAt describes the failed node at the cursor.
func stoppedAt(st *domain.Status) *StoppedError {
	path := domain.FormatPath(st.Cursor)
	for _, n := range st.Nodes {
		if n.Path == path && n.State == domain.StateError {
			return &StoppedError{Path: path, Node: n.Name, Kind: n.Kind, Message: n.Message}
		}
	}
	return nil
}
