// Package planner drives a task from a free-form description to an executed
// task graph.
//
// Planning runs as one model conversation that moves through phases. Each
// phase seeds its instruction prompts from the library and stamps its name on
// every record, and only records of the current phase reach the model. A phase
// ends when the model's last record ends with PhaseComplete, except BuildGraph,
// which ends once a task_graph artifact decodes.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/internal/logging"
	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/ports"
)

// PhaseCompleteMarker is the marker the model ends a response with to close a phase.
const PhaseCompleteMarker = "PHASE_COMPLETE"

// SessionNode names the model node that carries the planning conversation.
const SessionNode = "task_session"

// Phase is a planning stage.
type Phase int

const (
	PhaseSpec Phase = iota
	PhaseListSteps
	PhaseBuildGraph
	PhaseExecuteGraph
	PhaseComplete
)

var phaseNames = [...]string{"spec", "list_steps", "build_graph", "execute_graph", "complete"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// DefaultPhaseTags selects the prompts seeded when a phase starts.
var DefaultPhaseTags = map[Phase][]string{
	PhaseSpec:      {"user instruction", "model instruction", "task details"},
	PhaseListSteps: {"task steps"},
	PhaseBuildGraph: {
		"prompt summaries", "file creation", "build graph", "code generation",
		"framework api", "framework documentation", "project manifest", "create graph",
	},
	PhaseExecuteGraph: {"file creation", "code generation", "project manifest"},
}

// DefaultMaxRetries bounds the re-prompts after an unusable task graph.
const DefaultMaxRetries = 3

// ErrNoGraph is returned when planning stops before a task graph was produced.
var ErrNoGraph = errors.New("planning produced no task graph")

// AskFunc hands the model's message to the operator and returns the reply.
// An empty reply ends the conversation.
type AskFunc func(ctx context.Context, message string) (string, error)

// Planner tracks the phase of one task.
type Planner struct {
	mu         sync.Mutex
	phase      Phase
	graph      *domain.Node
	retries    int
	maxRetries int

	prompts     ports.PromptLibrary
	phaseTags   map[Phase][]string
	initialTags []string
	ask         AskFunc
	compiler    *compiler.Parser
	engineOpts  []runtime.EngineOption
	logger      *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithAsk sets the operator callback used when a phase is not yet complete.
func WithAsk(fn AskFunc) Option {
	return func(p *Planner) { p.ask = fn }
}

// WithInitialTags adds prompt tags seeded once, before the first phase.
func WithInitialTags(tags ...string) Option {
	return func(p *Planner) { p.initialTags = append(p.initialTags, tags...) }
}

// WithPhaseTags overrides the prompt tags of one phase.
func WithPhaseTags(phase Phase, tags ...string) Option {
	return func(p *Planner) { p.phaseTags[phase] = tags }
}

// WithMaxRetries bounds the re-prompts after an unusable task graph.
func WithMaxRetries(n int) Option {
	return func(p *Planner) { p.maxRetries = n }
}

// WithEngineOptions passes options to the engines the planner creates.
func WithEngineOptions(opts ...runtime.EngineOption) Option {
	return func(p *Planner) { p.engineOpts = append(p.engineOpts, opts...) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// New creates a planner in the spec phase.
func New(prompts ports.PromptLibrary, opts ...Option) *Planner {
	p := &Planner{
		prompts:    prompts,
		phaseTags:  make(map[Phase][]string, len(DefaultPhaseTags)),
		maxRetries: DefaultMaxRetries,
		compiler:   compiler.NewParser(nil),
		logger:     logging.NewNop(),
	}
	for k, v := range DefaultPhaseTags {
		p.phaseTags[k] = v
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Phase returns the current phase.
func (p *Planner) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Graph returns the decoded task graph, if one was produced.
func (p *Planner) Graph() *domain.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph
}

// Tags stamps the current phase on records.
func (p *Planner) Tags(*domain.Node) map[string]string {
	return map[string]string{domain.MetaPhase: p.Phase().String()}
}

// Filter admits records of the current phase and records without a phase.
func (p *Planner) Filter(r domain.Record) bool {
	phase, ok := r.Metadata[domain.MetaPhase]
	return !ok || phase == p.Phase().String()
}

// Continue decides after every planning turn whether the conversation goes on.
func (p *Planner) Continue(ctx context.Context, t *runtime.Turn) bool {
	switch p.Phase() {
	case PhaseBuildGraph:
		return p.continueBuild(ctx, t)
	case PhaseExecuteGraph, PhaseComplete:
		return false
	}

	if last, ok := t.Last(); ok && strings.HasSuffix(strings.TrimSpace(last.Content), PhaseCompleteMarker) {
		return p.advance(ctx, t)
	}
	return p.askOperator(ctx, t)
}

func (p *Planner) continueBuild(ctx context.Context, t *runtime.Turn) bool {
	for _, r := range t.Records {
		if r.Artifact() != domain.ArtifactTaskGraph || r.Metadata[domain.MetaIncomplete] == "true" {
			continue
		}
		g, err := p.compiler.Parse([]byte(r.Content))
		if err != nil {
			p.logger.Info("Task graph rejected", "phase", PhaseBuildGraph, "err", err)
			break
		}
		p.mu.Lock()
		p.graph = g
		p.mu.Unlock()
		p.advance(ctx, t)
		return false
	}

	p.mu.Lock()
	exhausted := p.retries >= p.maxRetries
	if !exhausted {
		p.retries++
	}
	p.mu.Unlock()
	if exhausted {
		return false
	}
	t.Notify(runtime.RetryMessage, false)
	return true
}

// advance moves to the next phase and seeds its prompts. The conversation goes
// on when a seeded prompt reaches the model.
func (p *Planner) advance(ctx context.Context, t *runtime.Turn) bool {
	p.mu.Lock()
	if p.phase < PhaseComplete {
		p.phase++
	}
	phase := p.phase
	p.mu.Unlock()
	p.logger.Info("Planning phase started", "phase", phase)

	added, err := p.seed(ctx, t, p.phaseTags[phase])
	if err != nil {
		p.logger.Warn("Phase prompts unavailable", "phase", phase, "err", err)
		return false
	}
	return added > 0 && phase <= PhaseBuildGraph
}

func (p *Planner) seed(ctx context.Context, t *runtime.Turn, tags []string) (int, error) {
	if p.prompts == nil || len(tags) == 0 {
		return 0, nil
	}
	found, err := p.prompts.Find(ctx, tags)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, pr := range found {
		t.Instruct(pr)
		if pr.Context {
			added++
		}
	}
	return added, nil
}

func (p *Planner) askOperator(ctx context.Context, t *runtime.Turn) bool {
	if p.ask == nil {
		return false
	}
	reply, err := p.ask(ctx, t.Text)
	if err != nil {
		p.logger.Warn("Operator reply failed", "err", err)
		return false
	}
	if strings.TrimSpace(reply) == "" {
		return false
	}
	t.Say(reply)
	return true
}

// Plan converses until a task graph decodes or the conversation stops.
func (p *Planner) Plan(ctx context.Context, task string) (*domain.Node, error) {
	session := &domain.Node{
		Name:    SessionNode,
		Variant: &domain.Model{Prompt: task, PromptTags: p.sessionTags()},
	}
	root := &domain.Node{Name: "planning", Variant: &domain.Container{}, Children: []*domain.Node{session}}

	opts := append(append([]runtime.EngineOption{}, p.engineOpts...),
		runtime.WithContinuation(p.Continue),
		runtime.WithTags(p.Tags),
		runtime.WithFilter(p.Filter),
	)
	if p.prompts != nil {
		opts = append(opts, runtime.WithPrompts(p.prompts))
	}
	eng, err := runtime.NewEngine(root, opts...)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	if _, err := eng.Play(ctx); err != nil {
		return nil, err
	}
	if session.State == domain.StateError {
		return nil, fmt.Errorf("planning session failed: %s", session.Message)
	}
	g := p.Graph()
	if g == nil {
		return nil, fmt.Errorf("%w (stopped in phase %s)", ErrNoGraph, p.Phase())
	}
	return g, nil
}

// sessionTags are the tags seeded by the session node itself: the initial tags
// and those of the spec phase.
func (p *Planner) sessionTags() []string {
	tags := append([]string{}, p.initialTags...)
	return append(tags, p.phaseTags[PhaseSpec]...)
}

// Execute traverses the planned graph. A graph whose root is not a container is
// wrapped in one. The caller closes the returned engine.
func (p *Planner) Execute(ctx context.Context, graph *domain.Node) (*runtime.Engine, *domain.Status, error) {
	root := graph
	if root.Kind() != domain.KindContainer {
		root = &domain.Node{Name: "task", Variant: &domain.Container{}, Children: []*domain.Node{graph}}
	}
	opts := append(append([]runtime.EngineOption{}, p.engineOpts...), runtime.WithTags(p.Tags))
	eng, err := runtime.NewEngine(root, opts...)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	p.phase = PhaseExecuteGraph
	p.mu.Unlock()

	st, err := eng.Play(ctx)
	if err != nil {
		return eng, st, err
	}
	if st.Done {
		p.mu.Lock()
		p.phase = PhaseComplete
		p.mu.Unlock()
		p.logger.Info("Task complete", "graph", root.Name)
	}
	return eng, st, nil
}
