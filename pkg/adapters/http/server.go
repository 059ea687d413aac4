// Package http exposes an engine over a small JSON API with Server-Sent Events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Server serves one engine.
type Server struct {
	Engine  ports.Engine
	Streams *StreamManager

	version string
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStreams shares sm with the engine, whose hooks were built from it
// before the server existed.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.Streams = sm }
}

// NewServer creates a server for engine.
func NewServer(engine ports.Engine, opts ...Option) *Server {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger
	return s
}

// NewHandler creates the HTTP handler for engine.
func NewHandler(engine ports.Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/status", s.GetStatus)
	r.Get("/graph", s.GetGraph)
	r.Get("/events", s.SubscribeEvents)
	r.Post("/step", s.action(s.Engine.Step))
	r.Post("/play", s.action(s.Engine.Play))
	r.Post("/rewind", s.action(s.Engine.Rewind))
	r.Route("/nodes/{path}", func(r chi.Router) {
		r.Get("/records", s.GetRecords)
		r.Post("/resolve", s.ResolveAssistance)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "tasktree-http",
		"version": strings.TrimSpace(s.version),
	})
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Status())
}

// GetGraph handles GET /graph. The body is the tagged-tree JSON document.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	data, err := s.Engine.Graph()
	if err != nil {
		s.fail(w, "Graph", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// GetRecords handles GET /nodes/{path}/records.
func (s *Server) GetRecords(w http.ResponseWriter, r *http.Request) {
	path, err := domain.ParsePath(chi.URLParam(r, "path"))
	if err != nil {
		s.fail(w, "Records", err)
		return
	}
	recs, err := s.Engine.Records(path)
	if err != nil {
		s.fail(w, "Records", err)
		return
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

// ResolveAssistance handles POST /nodes/{path}/resolve.
func (s *Server) ResolveAssistance(w http.ResponseWriter, r *http.Request) {
	path, err := domain.ParsePath(chi.URLParam(r, "path"))
	if err != nil {
		s.fail(w, "Resolve", err)
		return
	}
	s.action(func(ctx context.Context) (*domain.Status, error) {
		return s.Engine.ResolveAssistance(ctx, path)
	})(w, r)
}

// action runs a mutating call, broadcasts the status diff and returns the new status.
func (s *Server) action(fn func(context.Context) (*domain.Status, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		before := s.Engine.Status()
		st, err := fn(r.Context())
		if err != nil {
			s.fail(w, r.URL.Path, err)
			return
		}
		if diff := domain.Diff(before, st); diff != nil {
			if data, err := json.Marshal(diff); err == nil {
				s.Streams.Broadcast(string(data))
			}
		}
		s.writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "op", op, "err", err)
	} else {
		s.logger.Warn("Request rejected", "op", op, "err", err)
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrState):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

// StreamManager fans messages out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel. The returned func unsubscribes and closes it.
func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Broadcast delivers msg to every subscriber, dropping it for full buffers.
func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "payload_size", len(msg))
		}
	}
}

// Hooks broadcasts OnRecord and OnTurn events so clients can follow a streaming turn.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	send := func(v any) {
		if data, err := json.Marshal(v); err == nil {
			sm.Broadcast(string(data))
		}
	}
	return domain.LifecycleHooks{
		OnRecord: func(_ context.Context, e *domain.RecordEvent) { send(e) },
		OnTurn:   func(_ context.Context, e *domain.TurnEvent) { send(e) },
	}
}

// SubscribeEvents handles GET /events (SSE). The optional watch parameter
// (cursor, done, nodes) keeps only status diffs touching those fields.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	var watch []string
	if v := r.URL.Query().Get("watch"); v != "" {
		watch = strings.Split(v, ",")
	}

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watch) > 0 && !matchesWatch(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// matchesWatch reports whether a status diff carries a watched field.
// Messages that are not status diffs always pass.
func matchesWatch(msg string, watch []string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(msg), &fields); err != nil {
		return true
	}
	if _, isEvent := fields["type"]; isEvent {
		return true
	}
	for _, f := range watch {
		if _, ok := fields[strings.TrimSpace(f)]; ok {
			return true
		}
	}
	return false
}
