package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/internal/workers"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/aretw0/tasktree/pkg/script"
	"github.com/aretw0/tasktree/pkg/session"
)

// Engine drives one traversal of a task graph.
//
// Step, Play, Rewind and ResolveAssistance are serialized: a call made while
// another is running fails with domain.ErrBusy. Status, Graph and Records may
// be called at any time.
type Engine struct {
	running sync.Mutex
	stateMu sync.RWMutex

	ctx      *Context
	resolver *Resolver
	sessions *Sessions
	project  ports.Project
	logger   *slog.Logger
	hooks    domain.LifecycleHooks

	svc       *services
	executors map[domain.Kind]Executor
	ownsPool  bool

	started map[*domain.Node]time.Time
	pending []*domain.AdvanceEvent
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	svc       services
	project   ports.Project
	logger    *slog.Logger
	executors map[domain.Kind]Executor
}

// WithStreamer sets the model transport.
func WithStreamer(s Streamer) EngineOption {
	return func(c *engineConfig) { c.svc.streamer = s }
}

// WithScripts sets the interpreter used by script nodes.
func WithScripts(i *script.Interpreter) EngineOption {
	return func(c *engineConfig) { c.svc.scripts = i }
}

// WithPool sets the worker pool model turns run on. The caller keeps ownership.
func WithPool(p *workers.Pool) EngineOption {
	return func(c *engineConfig) { c.svc.pool = p }
}

// WithProject attaches the project artifacts are written into.
func WithProject(p ports.Project) EngineOption {
	return func(c *engineConfig) { c.project = p }
}

// WithPrompts sets the prompt library model nodes seed instructions from.
func WithPrompts(l ports.PromptLibrary) EngineOption {
	return func(c *engineConfig) { c.svc.prompts = l }
}

// WithContinuation sets the callback deciding whether a model node takes another turn.
func WithContinuation(fn ContinuationFunc) EngineOption {
	return func(c *engineConfig) { c.svc.continueFn = fn }
}

// WithFilter sets the predicate selecting which records reach the model.
func WithFilter(f session.Filter) EngineOption {
	return func(c *engineConfig) { c.svc.filter = f }
}

// WithTags sets the metadata stamped on records produced by model turns.
func WithTags(fn TagFunc) EngineOption {
	return func(c *engineConfig) { c.svc.tags = fn }
}

// WithLifecycleHooks registers observability hooks. Repeated calls chain.
func WithLifecycleHooks(h domain.LifecycleHooks) EngineOption {
	return func(c *engineConfig) { c.svc.hooks = c.svc.hooks.Merge(h) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(c *engineConfig) { c.logger = l }
}

// WithCompiler sets the parser used to decode generated task graphs.
func WithCompiler(p *compiler.Parser) EngineOption {
	return func(c *engineConfig) { c.svc.compiler = p }
}

// WithMaxTurns bounds the turns of one model conversation.
func WithMaxTurns(n int) EngineOption {
	return func(c *engineConfig) { c.svc.maxTurns = n }
}

// WithExecutor replaces the executor of a node kind.
func WithExecutor(kind domain.Kind, e Executor) EngineOption {
	return func(c *engineConfig) { c.executors[kind] = e }
}

// NewEngine creates an engine positioned on root, which must be a container.
func NewEngine(root *domain.Node, opts ...EngineOption) (*Engine, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", domain.ErrState)
	}
	if root.Kind() != domain.KindContainer {
		return nil, fmt.Errorf("%w: root %q must be a container, got %q", domain.ErrState, root.Name, root.Kind())
	}

	cfg := &engineConfig{executors: make(map[domain.Kind]Executor)}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNop()
	}
	if cfg.svc.scripts == nil {
		cfg.svc.scripts = script.New()
	}
	if cfg.svc.compiler == nil {
		cfg.svc.compiler = compiler.NewParser(nil)
	}
	ownsPool := cfg.svc.pool == nil
	if ownsPool {
		cfg.svc.pool = workers.New(workers.DefaultSize)
	}

	e := &Engine{
		project:   cfg.project,
		logger:    cfg.logger,
		hooks:     cfg.svc.hooks,
		ownsPool:  ownsPool,
		started:   make(map[*domain.Node]time.Time),
		executors: make(map[domain.Kind]Executor),
	}
	svc := cfg.svc
	e.svc = &svc
	e.sessions = newSessions(e.hooks)
	e.bind(root)

	model := &modelExecutor{svc: e.svc}
	e.executors[domain.KindContainer] = ExecutorFunc(executeContainer)
	e.executors[domain.KindScript] = &scriptExecutor{interp: e.svc.scripts}
	e.executors[domain.KindModel] = model
	e.executors[domain.KindAssist] = ExecutorFunc(executeAssist)
	e.executors[domain.KindDisaggregator] = &disaggregatorExecutor{model: model}
	for k, x := range cfg.executors {
		e.executors[k] = x
	}

	root.Walk(func(n *domain.Node) bool {
		if n.State == "" {
			n.State = domain.StateQueued
		}
		return true
	})
	if root.State == domain.StateQueued {
		root.State = domain.StateReady
	}
	return e, nil
}

// bind attaches a fresh context and resolver to root.
func (e *Engine) bind(root *domain.Node) {
	e.ctx = NewContext(root)
	e.resolver = NewResolver(e.ctx, e.project)
	e.ctx.Observe(func(cursor []int, n *domain.Node, done bool) {
		e.pending = append(e.pending, &domain.AdvanceEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventAdvance},
			Cursor:    cursor,
			Node:      n.Name,
			Done:      done,
		})
	})
}

func (e *Engine) sessionsLocked() *Sessions {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.sessions
}

// Close releases the worker pool when the engine created it.
func (e *Engine) Close() error {
	if e.ownsPool {
		e.svc.pool.Close()
	}
	return nil
}

// StopStreams asks the model transport to end its in-flight streams after the
// line being read. It reports false when the transport cannot be stopped.
func (e *Engine) StopStreams() bool {
	s, ok := e.svc.streamer.(Stoppable)
	if !ok {
		return false
	}
	e.logger.Debug("Stopping model streams")
	s.Stop()
	return true
}

// ResumeStreams clears a previous StopStreams.
func (e *Engine) ResumeStreams() {
	if s, ok := e.svc.streamer.(Stoppable); ok {
		s.Resume()
	}
}

// Root returns the graph root.
func (e *Engine) Root() *domain.Node {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.ctx.Root()
}

// Variable returns the value of an environment variable.
func (e *Engine) Variable(name string) (any, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.ctx.Get(name)
}

// Step executes the active node and advances past it when it completes.
// A node that fails stays active so the next Step retries it. Node failures are
// recorded on the node, not returned.
func (e *Engine) Step(ctx context.Context) (*domain.Status, error) {
	if !e.running.TryLock() {
		return nil, domain.ErrBusy
	}
	defer e.running.Unlock()
	if err := e.step(ctx); err != nil {
		return nil, err
	}
	return e.Status(), nil
}

// Play steps until the graph is exhausted or a node fails.
func (e *Engine) Play(ctx context.Context) (*domain.Status, error) {
	if !e.running.TryLock() {
		return nil, domain.ErrBusy
	}
	defer e.running.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return e.Status(), err
		}
		e.stateMu.RLock()
		done := e.ctx.Done()
		e.stateMu.RUnlock()
		if done {
			break
		}
		if err := e.step(ctx); err != nil {
			return e.Status(), err
		}
		if e.currentState() == domain.StateError {
			break
		}
	}
	return e.Status(), nil
}

func (e *Engine) currentState() domain.State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.ctx.Done() {
		return ""
	}
	return e.ctx.Current().State
}

func (e *Engine) step(ctx context.Context) error {
	e.stateMu.RLock()
	done := e.ctx.Done()
	var n *domain.Node
	if !done {
		n = e.ctx.Current()
	}
	e.stateMu.RUnlock()
	if done {
		return nil
	}

	x, ok := e.executors[n.Kind()]
	if !ok {
		return fmt.Errorf("%w: no executor for kind %q", domain.ErrState, n.Kind())
	}
	e.logger.Debug("Executing node", "node", n.Name, "kind", n.Kind())
	if err := x.Execute(ctx, &Exec{engine: e}, n); err != nil {
		if errors.Is(err, domain.ErrBusy) {
			return err
		}
		e.logger.Warn("Node failed", "node", n.Name, "kind", n.Kind(), "err", err)
	}
	if ctx.Err() != nil && n.State != domain.StateComplete {
		return ctx.Err()
	}
	if n.State != domain.StateComplete {
		return nil
	}

	e.stateMu.Lock()
	e.ctx.Advance()
	var ready *domain.Node
	if !e.ctx.Done() {
		if cur := e.ctx.Current(); cur.State == domain.StateQueued {
			ready = cur
		}
	}
	e.stateMu.Unlock()
	e.flushAdvance(ctx)

	if ready != nil {
		return e.transition(ctx, ready, domain.StateReady, "")
	}
	return nil
}

func (e *Engine) flushAdvance(ctx context.Context) {
	e.stateMu.Lock()
	events := e.pending
	e.pending = nil
	e.stateMu.Unlock()
	if e.hooks.OnAdvance == nil {
		return
	}
	for _, ev := range events {
		e.hooks.OnAdvance(ctx, ev)
	}
}

// transition moves n to a new state and reports the change.
func (e *Engine) transition(ctx context.Context, n *domain.Node, to domain.State, msg string) error {
	e.stateMu.Lock()
	from := n.State
	if err := domain.Transition(n, to); err != nil {
		e.stateMu.Unlock()
		return err
	}
	n.Message = msg
	var d time.Duration
	switch {
	case to == domain.StateExecuting:
		e.started[n] = time.Now()
	case to.Terminal():
		if t, ok := e.started[n]; ok {
			d = time.Since(t)
			delete(e.started, n)
		}
	}
	path, _ := e.ctx.PathOf(n)
	e.stateMu.Unlock()

	e.logger.Debug("Node state changed", "node", n.Name, "state", to, "from", from)
	if e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStateChange},
			Path:      path,
			Node:      n.Name,
			Kind:      n.Kind(),
			From:      from,
			To:        to,
			Message:   msg,
			Duration:  d,
		})
	}
	return nil
}

// splice replaces the children of n with the decoded graph. A decoded container
// contributes its children, any other node becomes the only child.
func (e *Engine) splice(n *domain.Node, graph *domain.Node) {
	children := []*domain.Node{graph}
	if graph.Kind() == domain.KindContainer {
		children = graph.Children
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	for _, old := range n.Children {
		old.Walk(func(d *domain.Node) bool {
			e.ctx.ClearNodeVariables(d)
			return true
		})
	}
	for _, c := range children {
		c.Walk(func(d *domain.Node) bool {
			if d.State == "" {
				d.State = domain.StateQueued
			}
			return true
		})
	}
	n.Children = children
}

// Rewind resets every node and moves the cursor back to the root.
func (e *Engine) Rewind(ctx context.Context) (*domain.Status, error) {
	if !e.running.TryLock() {
		return nil, domain.ErrBusy
	}
	defer e.running.Unlock()

	var events []*domain.NodeEvent
	e.stateMu.Lock()
	root := e.ctx.Root()
	rootFrom := root.State
	walkPaths(root, nil, func(path []int, n *domain.Node) {
		from := n.State
		n.State = domain.StateQueued
		n.Message = ""
		switch v := n.Variant.(type) {
		case *domain.Assist:
			v.Resolved = false
		case *domain.Script:
			v.Output = ""
		}
		if from != domain.StateQueued && len(path) > 0 {
			events = append(events, e.stateEvent(path, n, from))
		}
	})
	root.State = domain.StateReady
	if rootFrom != domain.StateReady {
		events = append(events, e.stateEvent(nil, root, rootFrom))
	}
	e.started = make(map[*domain.Node]time.Time)
	e.ctx.Reset()
	e.stateMu.Unlock()

	e.sessionsLocked().Reset()
	e.flushAdvance(ctx)
	if e.hooks.OnStateChange != nil {
		for _, ev := range events {
			e.hooks.OnStateChange(ctx, ev)
		}
	}
	e.logger.Info("Traversal rewound", "graph", root.Name)
	return e.Status(), nil
}

func (e *Engine) stateEvent(path []int, n *domain.Node, from domain.State) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStateChange},
		Path:      path,
		Node:      n.Name,
		Kind:      n.Kind(),
		From:      from,
		To:        n.State,
	}
}

// ResolveAssistance marks the assist node at path as resolved. The next Step completes it.
func (e *Engine) ResolveAssistance(ctx context.Context, path []int) (*domain.Status, error) {
	if !e.running.TryLock() {
		return nil, domain.ErrBusy
	}
	defer e.running.Unlock()

	e.stateMu.Lock()
	n, err := e.ctx.NodeAt(path)
	if err != nil {
		e.stateMu.Unlock()
		return nil, err
	}
	v, ok := n.Variant.(*domain.Assist)
	if !ok {
		e.stateMu.Unlock()
		return nil, fmt.Errorf("%w: node %q is %s, not assist", domain.ErrState, n.Name, n.Kind())
	}
	v.Resolved = true
	e.stateMu.Unlock()

	e.logger.Info("Assistance resolved", "node", n.Name)
	return e.Status(), nil
}

// Status returns the cursor and per-node states.
func (e *Engine) Status() *domain.Status {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	st := &domain.Status{Cursor: e.ctx.Cursor(), Done: e.ctx.Done()}
	walkPaths(e.ctx.Root(), nil, func(path []int, n *domain.Node) {
		st.Nodes = append(st.Nodes, domain.NodeStatus{
			Path:    domain.FormatPath(path),
			Name:    n.Name,
			Kind:    n.Kind(),
			State:   n.State,
			Message: n.Message,
		})
	})
	return st
}

// Records returns the session records of the node at path.
func (e *Engine) Records(path []int) ([]domain.Record, error) {
	e.stateMu.RLock()
	n, err := e.ctx.NodeAt(path)
	e.stateMu.RUnlock()
	if err != nil {
		return nil, err
	}
	sess, ok := e.sessionsLocked().Lookup(n)
	if !ok {
		return nil, nil
	}
	return sess.Records(), nil
}

// Graph returns the JSON tagged-tree encoding of the graph in its current state.
func (e *Engine) Graph() ([]byte, error) {
	return e.EncodeGraph(compiler.FormatJSON)
}

// EncodeGraph renders the graph in the given format.
func (e *Engine) EncodeGraph(format compiler.Format) ([]byte, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return compiler.Encode(e.ctx.Root(), format)
}

// Checkpoint snapshots the traversal. It waits for a running step to finish.
func (e *Engine) Checkpoint(id string) (*domain.Checkpoint, error) {
	e.running.Lock()
	defer e.running.Unlock()

	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	graph, err := compiler.Encode(e.ctx.Root(), compiler.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	return &domain.Checkpoint{
		ID:          id,
		Graph:       graph,
		Cursor:      e.ctx.Cursor(),
		Done:        e.ctx.Done(),
		Variables:   e.ctx.Variables(),
		Transcripts: e.sessions.Snapshot(e.ctx.Root()),
	}, nil
}

// Restore replaces the traversal with the one captured in cp.
func (e *Engine) Restore(ctx context.Context, cp *domain.Checkpoint) error {
	if !e.running.TryLock() {
		return domain.ErrBusy
	}
	defer e.running.Unlock()

	root, err := e.svc.compiler.Parse(cp.Graph)
	if err != nil {
		return fmt.Errorf("restore graph: %w", err)
	}
	if root.Kind() != domain.KindContainer {
		return fmt.Errorf("%w: restored root %q is not a container", domain.ErrState, root.Name)
	}

	e.stateMu.Lock()
	prev := e.ctx
	e.bind(root)
	if err := e.ctx.Restore(cp.Cursor, cp.Done, cp.Variables); err != nil {
		e.ctx = prev
		e.resolver = NewResolver(prev, e.project)
		e.stateMu.Unlock()
		return err
	}
	root.Walk(func(n *domain.Node) bool {
		// An interrupted attempt restarts from scratch.
		if n.State == domain.StateExecuting {
			n.State = domain.StateReady
		}
		return true
	})
	e.started = make(map[*domain.Node]time.Time)
	e.sessions = newSessions(e.hooks)
	e.sessions.Restore(root, cp.Transcripts)
	e.stateMu.Unlock()

	e.logger.Info("Traversal restored", "checkpoint", cp.ID, "cursor", domain.FormatPath(cp.Cursor))
	return nil
}
