package tasktree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/tasktree/internal/adapters/file"
	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/internal/validator"
	"github.com/aretw0/tasktree/internal/workers"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/observability"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/aretw0/tasktree/pkg/session"
)

// Version is reported by the CLI and the control surfaces. Overridden at build time.
var Version = "0.1.0-dev"

// ErrNoCheckpoints is returned by Save and Resume when no checkpoint store was configured.
var ErrNoCheckpoints = errors.New("no checkpoint store configured")

// Streamer is the model transport used by model and disaggregator nodes.
type Streamer = runtime.Streamer

// Turn is one completed exchange with a model, handed to a ContinuationFunc.
type Turn = runtime.Turn

// ContinuationFunc decides after every turn whether a model conversation goes on.
type ContinuationFunc = runtime.ContinuationFunc

// Format selects a graph encoding.
type Format = compiler.Format

const (
	FormatJSON = compiler.FormatJSON
	FormatYAML = compiler.FormatYAML
)

// Engine is the high-level entry point of the library.
// It wraps the internal runtime and adds graph loading, validation, metrics and checkpoints.
type Engine struct {
	runtime     *runtime.Engine
	loader      ports.GraphLoader
	root        *domain.Node
	checkpoints *session.Manager
	metrics     *observability.Metrics
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	pool        *workers.Pool
	poolSize    int
	runtimeOpts []runtime.EngineOption
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom GraphLoader, bypassing the file loader.
func WithLoader(l ports.GraphLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithGraph runs an already decoded graph. It takes precedence over any loader.
func WithGraph(root *domain.Node) Option {
	return func(e *Engine) {
		e.root = root
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls accumulate.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithStreamer sets the model transport, typically an *llm.Client.
func WithStreamer(s Streamer) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithStreamer(s))
	}
}

// WithPoolSize bounds the number of model conversations streaming at once.
func WithPoolSize(n int) Option {
	return func(e *Engine) {
		e.poolSize = n
	}
}

// WithProject sets the directory that receives file artifacts and serves asset:// inputs.
func WithProject(p ports.Project) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithProject(p))
	}
}

// WithPrompts sets the library searched by the prompt tags of model nodes.
func WithPrompts(l ports.PromptLibrary) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithPrompts(l))
	}
}

// WithContinuation installs the callback that drives multi-turn conversations.
func WithContinuation(fn ContinuationFunc) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithContinuation(fn))
	}
}

// WithMaxTurns bounds the turns of one model conversation.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxTurns(n))
	}
}

// WithCheckpoints enables Save and Resume through the given manager.
func WithCheckpoints(m *session.Manager) Option {
	return func(e *Engine) {
		e.checkpoints = m
	}
}

// WithCheckpointStore is WithCheckpoints over a manager without distributed locking.
func WithCheckpointStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.checkpoints = session.NewManager(store)
	}
}

// WithMetrics records traversal metrics in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New loads, validates and prepares the graph at graphPath (JSON or YAML).
// If WithLoader or WithGraph is provided, graphPath may be empty.
func New(graphPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.root == nil {
		if eng.loader == nil {
			if graphPath == "" {
				return nil, fmt.Errorf("graphPath is required when no custom loader is provided")
			}
			eng.loader = file.NewLoader(graphPath)
		}
		data, err := eng.loader.GetGraph()
		if err != nil {
			return nil, err
		}
		root, err := compiler.NewParser(nil).Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode graph %q: %w", eng.loader.Name(), err)
		}
		eng.root = root
		if eng.Name == "" {
			eng.Name = eng.loader.Name()
		}
	}
	if eng.Name == "" && eng.root != nil {
		eng.Name = eng.root.Name
	}

	if err := validator.ValidateGraph(eng.root); err != nil {
		return nil, err
	}

	hooks := eng.hooks
	if eng.metrics != nil {
		hooks = hooks.Merge(eng.metrics.Hooks())
	}
	rtOpts := append([]runtime.EngineOption{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(hooks),
	}, eng.runtimeOpts...)
	if eng.poolSize > 0 {
		eng.pool = workers.New(eng.poolSize)
		rtOpts = append(rtOpts, runtime.WithPool(eng.pool))
	}

	rt, err := runtime.NewEngine(eng.root, rtOpts...)
	if err != nil {
		if eng.pool != nil {
			eng.pool.Close()
		}
		return nil, err
	}
	eng.runtime = rt
	return eng, nil
}

// Close releases the worker pool.
func (e *Engine) Close() error {
	err := e.runtime.Close()
	if e.pool != nil {
		e.pool.Close()
	}
	return err
}

// Root returns the graph root.
func (e *Engine) Root() *domain.Node { return e.runtime.Root() }

// StopStreams ends in-flight model streams once the current line is processed.
// It reports false when the configured transport cannot be stopped.
func (e *Engine) StopStreams() bool { return e.runtime.StopStreams() }

// ResumeStreams lets model streams run again after StopStreams.
func (e *Engine) ResumeStreams() { e.runtime.ResumeStreams() }

// Loader returns the loader the graph came from, or nil for WithGraph.
func (e *Engine) Loader() ports.GraphLoader { return e.loader }

// Metrics returns the registry configured with WithMetrics, or nil.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Status returns the cursor and per-node states.
func (e *Engine) Status() *domain.Status { return e.runtime.Status() }

// Step executes the active node.
func (e *Engine) Step(ctx context.Context) (*domain.Status, error) { return e.runtime.Step(ctx) }

// Play steps until the graph is exhausted or a node fails.
func (e *Engine) Play(ctx context.Context) (*domain.Status, error) { return e.runtime.Play(ctx) }

// Rewind resets every node and moves the cursor back to the root.
func (e *Engine) Rewind(ctx context.Context) (*domain.Status, error) { return e.runtime.Rewind(ctx) }

// ResolveAssistance marks the assist node at path as resolved.
func (e *Engine) ResolveAssistance(ctx context.Context, path []int) (*domain.Status, error) {
	return e.runtime.ResolveAssistance(ctx, path)
}

// Records returns the session records of the node at path.
func (e *Engine) Records(path []int) ([]domain.Record, error) { return e.runtime.Records(path) }

// Graph returns the JSON encoding of the graph in its current state.
func (e *Engine) Graph() ([]byte, error) { return e.runtime.Graph() }

// EncodeGraph renders the graph in the given format.
func (e *Engine) EncodeGraph(format Format) ([]byte, error) { return e.runtime.EncodeGraph(format) }

// Variable returns the value of a variable in scope at the cursor.
func (e *Engine) Variable(name string) (any, error) { return e.runtime.Variable(name) }

// Checkpoint snapshots the traversal without persisting it.
func (e *Engine) Checkpoint(id string) (*domain.Checkpoint, error) { return e.runtime.Checkpoint(id) }

// Save persists the traversal under id.
func (e *Engine) Save(ctx context.Context, id string) error {
	if e.checkpoints == nil {
		return ErrNoCheckpoints
	}
	cp, err := e.runtime.Checkpoint(id)
	if err != nil {
		return err
	}
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint %q: %w", id, err)
	}
	e.logger.Debug("Checkpoint saved", "checkpoint", id, "cursor", domain.FormatPath(cp.Cursor))
	return nil
}

// Resume restores the traversal saved under id. It reports false when no
// checkpoint exists, leaving the engine untouched.
func (e *Engine) Resume(ctx context.Context, id string) (bool, error) {
	if e.checkpoints == nil {
		return false, ErrNoCheckpoints
	}
	cp, err := e.checkpoints.Load(ctx, id)
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load checkpoint %q: %w", id, err)
	}
	if err := e.runtime.Restore(ctx, cp); err != nil {
		return false, err
	}
	return true, nil
}

// Discard removes the checkpoint saved under id.
func (e *Engine) Discard(ctx context.Context, id string) error {
	if e.checkpoints == nil {
		return ErrNoCheckpoints
	}
	return e.checkpoints.Delete(ctx, id)
}

var _ ports.Engine = (*Engine)(nil)
