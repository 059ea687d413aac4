package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/tasktree/internal/config"
	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/pkg/domain"
)

// NewLogger builds the application logger from the log section. Debug forces
// the debug level. Logs go to Stderr so they stay out of the task output.
func NewLogger(cfg *config.Config, debug bool) *slog.Logger {
	opts := cfg.LogOptions()
	opts.Writer = os.Stderr
	if debug {
		opts.Level = slog.LevelDebug
	}
	return logging.NewWithOptions(opts)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Node state", "path", domain.FormatPath(e.Path), "node", e.Node, "from", e.From, "to", e.To)
		},
		OnAdvance: func(ctx context.Context, e *domain.AdvanceEvent) {
			logger.Debug("Cursor moved", "cursor", domain.FormatPath(e.Cursor), "node", e.Node, "done", e.Done)
		},
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			logger.Debug("Model turn", "node", e.Node, "backend", e.Backend, "turn", e.Turn, "records", e.Records, "duration", e.Duration)
		},
	}
}
