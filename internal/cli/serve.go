package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/tasktree"
	httpAdapter "github.com/aretw0/tasktree/pkg/adapters/http"
	"github.com/aretw0/tasktree/pkg/adapters/mcp"
)

// ShutdownTimeout bounds the graceful drain of outstanding requests.
const ShutdownTimeout = 5 * time.Second

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// ServeOptions configures the HTTP and MCP surfaces.
type ServeOptions struct {
	GraphPath string
	Addr      string
	// Port is used by the MCP SSE transport.
	Port      int
	Transport string
	// TaskID resumes the traversal saved under this checkpoint.
	TaskID string
}

func (s *Stack) serveEngine(ctx context.Context, opts ServeOptions, extra ...tasktree.Option) (*tasktree.Engine, error) {
	eng, err := s.NewEngine(opts.GraphPath, extra...)
	if err != nil {
		return nil, err
	}
	if opts.TaskID != "" {
		ok, err := eng.Resume(ctx, opts.TaskID)
		if err != nil {
			eng.Close()
			return nil, err
		}
		s.Logger.Info("Serving task", "task", opts.TaskID, "resumed", ok)
	}
	return eng, nil
}

// NewHTTPServer builds the HTTP surface for one engine with /metrics mounted.
// The caller closes the returned engine.
func NewHTTPServer(ctx context.Context, stack *Stack, opts ServeOptions) (*http.Server, *tasktree.Engine, error) {
	streams := httpAdapter.NewStreamManager()
	eng, err := stack.serveEngine(ctx, opts, tasktree.WithLifecycleHooks(streams.Hooks()))
	if err != nil {
		return nil, nil, err
	}
	handler := httpAdapter.NewHandler(eng,
		httpAdapter.WithVersion(tasktree.Version),
		httpAdapter.WithMetrics(stack.Metrics.Handler()),
		httpAdapter.WithLogger(stack.Logger),
		httpAdapter.WithStreams(streams),
	)
	return &http.Server{Addr: opts.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}, eng, nil
}

// Serve runs the HTTP surface until ctx ends, then drains it.
func Serve(ctx context.Context, stack *Stack, opts ServeOptions) error {
	srv, eng, err := NewHTTPServer(ctx, stack, opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	serverErrors := make(chan error, 1)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		stack.Logger.Info("HTTP server listening", "address", srv.Addr, "graph", opts.GraphPath)
		serverErrors <- srv.ListenAndServe()
		return nil
	})

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", ShutdownTimeout, err)
		}
		stack.Logger.Info("HTTP server stopped")
		return nil
	}
}

// ServeMCP exposes the engine as MCP tools over stdio or SSE.
func ServeMCP(ctx context.Context, stack *Stack, opts ServeOptions) error {
	eng, err := stack.serveEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := mcp.NewServer(eng, tasktree.Version, mcp.WithLogger(stack.Logger))
	switch opts.Transport {
	case "", TransportStdio:
		stack.Logger.Info("MCP server starting", "transport", TransportStdio)
		return srv.ServeStdio()
	case TransportSSE:
		return srv.ServeSSE(ctx, opts.Port)
	}
	return fmt.Errorf("unknown transport %q", opts.Transport)
}
