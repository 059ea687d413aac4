package runner

import (
	"io"
	"log/slog"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithPrompter sets how the operator is asked. Without one the runner is headless.
func WithPrompter(p Prompter) Option {
	return func(r *Runner) {
		r.prompter = p
	}
}

// WithOutput sets where operator-facing messages go.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTaskID sets the checkpoint ID saved after every pass. Empty disables saving.
func WithTaskID(id string) Option {
	return func(r *Runner) {
		r.taskID = id
	}
}

// WithSignals controls whether SIGINT and SIGTERM interrupt the run. Enabled by default.
func WithSignals(enabled bool) Option {
	return func(r *Runner) {
		r.signals = enabled
	}
}

// WithStopper sets what the first signal of a pass stops before the pass is
// cancelled. It defaults to the engine when the engine is a Stopper; nil
// cancels at once.
func WithStopper(s Stopper) Option {
	return func(r *Runner) {
		r.stopper = s
	}
}
