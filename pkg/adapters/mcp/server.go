// Package mcp exposes an engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI names the graph resource.
const GraphURI = "tasktree://graph"

// StatusResponse is the output of every traversal tool.
type StatusResponse struct {
	Cursor string              `json:"cursor" jsonschema_description:"Dotted path of the active node, empty for the root"`
	Done   bool                `json:"done" jsonschema_description:"True once every node has completed"`
	Nodes  []domain.NodeStatus `json:"nodes" jsonschema_description:"Per-node states in depth-first order"`
}

// RecordsResponse is the output of get_records.
type RecordsResponse struct {
	Path    string          `json:"path"`
	Records []domain.Record `json:"records"`
}

// Server wraps an engine and exposes it as an MCP server.
type Server struct {
	engine    ports.Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server named tasktree-mcp at the given version.
func NewServer(engine ports.Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("tasktree-mcp", strings.TrimSpace(version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
		return nil
	})

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Get the cursor and the state of every node."),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleStatus))

	s.mcpServer.AddTool(mcp.NewTool("step",
		mcp.WithDescription("Execute the active node and advance past it when it completes."),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.traversal("step", s.engine.Step)))

	s.mcpServer.AddTool(mcp.NewTool("play",
		mcp.WithDescription("Execute nodes until the graph is exhausted or a node fails."),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.traversal("play", s.engine.Play)))

	s.mcpServer.AddTool(mcp.NewTool("rewind",
		mcp.WithDescription("Reset every node and move the cursor back to the root."),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.traversal("rewind", s.engine.Rewind)))

	s.mcpServer.AddTool(mcp.NewTool("resolve_assistance",
		mcp.WithDescription("Mark an assist node as resolved so the next step completes it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Dotted child indices of the assist node, e.g. 0.2")),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleResolve))

	s.mcpServer.AddTool(mcp.NewTool("get_records",
		mcp.WithDescription("Get the conversation records of a model node."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Dotted child indices of the node")),
		mcp.WithOutputSchema[RecordsResponse](),
	), mcp.NewStructuredToolHandler(s.handleRecords))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the encoded task graph in its current state."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.engine.Graph()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func toResponse(st *domain.Status) StatusResponse {
	if st == nil {
		return StatusResponse{}
	}
	return StatusResponse{Cursor: domain.FormatPath(st.Cursor), Done: st.Done, Nodes: st.Nodes}
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	return toResponse(s.engine.Status()), nil
}

func (s *Server) traversal(name string, fn func(context.Context) (*domain.Status, error)) func(context.Context, mcp.CallToolRequest, map[string]interface{}) (StatusResponse, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
		st, err := fn(ctx)
		if err != nil {
			s.logger.Warn("MCP tool failed", "tool", name, "err", err)
			return StatusResponse{}, fmt.Errorf("%s failed: %w", name, err)
		}
		return toResponse(st), nil
	}
}

func pathArg(args map[string]interface{}) ([]int, error) {
	raw, _ := args["path"].(string)
	return domain.ParsePath(strings.TrimSpace(raw))
}

func (s *Server) handleResolve(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	path, err := pathArg(args)
	if err != nil {
		return StatusResponse{}, err
	}
	return s.traversal("resolve_assistance", func(ctx context.Context) (*domain.Status, error) {
		return s.engine.ResolveAssistance(ctx, path)
	})(ctx, request, args)
}

func (s *Server) handleRecords(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RecordsResponse, error) {
	path, err := pathArg(args)
	if err != nil {
		return RecordsResponse{}, err
	}
	recs, err := s.engine.Records(path)
	if err != nil {
		return RecordsResponse{}, fmt.Errorf("records failed: %w", err)
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	return RecordsResponse{Path: domain.FormatPath(path), Records: recs}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Current Task Graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := s.engine.Graph()
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
