package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/internal/workers"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/llm"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/aretw0/tasktree/pkg/script"
	"github.com/aretw0/tasktree/pkg/session"
)

// Executor runs one node variant.
//
// Execute moves the node to executing before doing any work and leaves it
// complete or error when it returns. The returned error mirrors a recorded
// failure; only domain.ErrBusy means the node was left untouched.
type Executor interface {
	Execute(ctx context.Context, x *Exec, n *domain.Node) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, x *Exec, n *domain.Node) error

func (f ExecutorFunc) Execute(ctx context.Context, x *Exec, n *domain.Node) error {
	return f(ctx, x, n)
}

// Streamer is the model transport. *llm.Client satisfies it.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request, fn llm.ChunkFunc) error
}

// Stoppable is a Streamer whose in-flight streams can be ended cooperatively.
// *llm.Client satisfies it.
type Stoppable interface {
	Stop()
	Resume()
}

// ContinuationFunc decides after every model turn whether another turn is issued.
// It runs on the worker that streamed the turn, which waits for it to return.
type ContinuationFunc func(ctx context.Context, t *Turn) bool

// TagFunc returns metadata stamped on every record a node's turn produces.
type TagFunc func(n *domain.Node) map[string]string

// Turn is one finished model exchange.
type Turn struct {
	Node   *domain.Node
	Path   []int
	Number int

	// Records are the sealed records the turn produced, in order.
	Records []domain.Record
	// Text is the raw streamed text.
	Text string

	session *session.Session
	tags    func() map[string]string
}

// Say appends a follow-up user record that the next turn will see.
func (t *Turn) Say(content string) {
	t.append(domain.SenderUser, content, true)
}

// Notify appends a record from the task manager. Hidden records reach the model but not the display.
func (t *Turn) Notify(content string, display bool) {
	t.append(domain.SenderTaskManager, content, display)
}

// Instruct seeds a prompt from the library as an instruction record.
func (t *Turn) Instruct(p domain.Prompt) {
	seedPrompt(t.session, p, t.tags())
}

// Last returns the last record of the turn.
func (t *Turn) Last() (domain.Record, bool) {
	if len(t.Records) == 0 {
		return domain.Record{}, false
	}
	return t.Records[len(t.Records)-1], true
}

func (t *Turn) append(sender, content string, display bool) {
	t.session.Append(domain.Record{
		Sender:    sender,
		Content:   content,
		Kind:      domain.RecordConversational,
		InContext: true,
		InDisplay: display,
		Metadata:  copyMeta(t.tags()),
		Sealed:    true,
	})
}

// seedPrompt appends p as an instruction record unless it was already seeded in the same phase.
func seedPrompt(s *session.Session, p domain.Prompt, meta map[string]string) {
	for _, r := range s.Records() {
		if r.Kind == domain.RecordInstruction && r.Metadata[domain.MetaPrompt] == p.ID &&
			r.Metadata[domain.MetaPhase] == meta[domain.MetaPhase] {
			return
		}
	}
	m := copyMeta(meta)
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[domain.MetaPrompt] = p.ID
	s.Append(domain.Record{
		Sender:    domain.SenderSystem,
		Content:   p.Content,
		Kind:      domain.RecordInstruction,
		InContext: p.Context,
		InDisplay: p.Display,
		Metadata:  m,
		Sealed:    true,
	})
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Exec is what executors see of the engine.
type Exec struct {
	engine *Engine
}

// Context returns the traversal context.
func (x *Exec) Context() *Context { return x.engine.ctx }

// Resolver returns the reference resolver bound to the traversal.
func (x *Exec) Resolver() *Resolver { return x.engine.resolver }

// Session returns the record log of n.
func (x *Exec) Session(n *domain.Node) *session.Session { return x.engine.sessionsLocked().For(n) }

// Splice replaces the children of n with a generated graph.
func (x *Exec) Splice(n, graph *domain.Node) { x.engine.splice(n, graph) }

// Logger returns the engine logger.
func (x *Exec) Logger() *slog.Logger { return x.engine.logger }

// Project returns the attached project, which may be nil.
func (x *Exec) Project() ports.Project { return x.engine.project }

// Begin moves n to executing and clears its previous failure.
func (x *Exec) Begin(ctx context.Context, n *domain.Node) error {
	return x.engine.transition(ctx, n, domain.StateExecuting, "")
}

// Complete settles n successfully.
func (x *Exec) Complete(ctx context.Context, n *domain.Node) error {
	return x.engine.transition(ctx, n, domain.StateComplete, "")
}

// Fail records err on n and returns it.
func (x *Exec) Fail(ctx context.Context, n *domain.Node, err error) error {
	if terr := x.engine.transition(ctx, n, domain.StateError, err.Error()); terr != nil {
		return fmt.Errorf("%w (while recording %v)", terr, err)
	}
	return err
}

// ResolveInputs resolves every declared input of n.
func (x *Exec) ResolveInputs(n *domain.Node) (map[string]any, error) {
	values := make(map[string]any, len(n.Inputs))
	for _, ref := range n.Inputs {
		v, err := x.engine.resolver.Resolve(ref)
		if err != nil {
			return nil, err
		}
		values[ref] = v
	}
	return values, nil
}

// services bundles the collaborators of the built-in executors.
type services struct {
	streamer   Streamer
	scripts    *script.Interpreter
	pool       *workers.Pool
	prompts    ports.PromptLibrary
	compiler   *compiler.Parser
	continueFn ContinuationFunc
	filter     session.Filter
	tags       TagFunc
	maxTurns   int
	hooks      domain.LifecycleHooks
}

func (s *services) tagsFor(n *domain.Node) func() map[string]string {
	return func() map[string]string {
		if s.tags == nil {
			return nil
		}
		return s.tags(n)
	}
}

func (s *services) onTurn(ctx context.Context, n *domain.Node, backend string, number, records int, d time.Duration, err error) {
	if s.hooks.OnTurn == nil {
		return
	}
	ev := &domain.TurnEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventTurn},
		Node:      n.Name,
		Backend:   backend,
		Turn:      number,
		Records:   records,
		Duration:  d,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	s.hooks.OnTurn(ctx, ev)
}
