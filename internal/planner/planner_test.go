package planner_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/tasktree/internal/planner"
	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (s *scripted) Stream(ctx context.Context, req llm.Request, fn llm.ChunkFunc) error {
	s.mu.Lock()
	idx := len(s.prompts)
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()
	if idx >= len(s.replies) {
		return &llm.Error{Kind: llm.KindBackend, Message: "no scripted reply"}
	}
	return fn(s.replies[idx])
}

type library []domain.Prompt

func (l library) Find(_ context.Context, tags []string) ([]domain.Prompt, error) {
	var out []domain.Prompt
	for _, p := range l {
		if p.Matches(tags) {
			out = append(out, p)
		}
	}
	return out, nil
}

var prompts = library{
	{ID: "spec", Tags: []string{"task details"}, Content: "Describe the task", Context: true},
	{ID: "steps", Tags: []string{"task steps"}, Content: "List the steps", Context: true},
	{ID: "graph", Tags: []string{"build graph"}, Content: "Build a graph", Context: true},
}

const graphJSON = `{"name":"plan","type":"container","children":[{"name":"work","type":"script","source":"env.Print(\"done\")"}]}`

func TestPlan_WalksPhases(t *testing.T) {
	streamer := &scripted{replies: []string{
		"Which language?",
		"Understood. PHASE_COMPLETE",
		"1. write code\nPHASE_COMPLETE",
		"<task_graph>\nnot: [yaml\n</task_graph>",
		"<task_graph>\n" + graphJSON + "\n</task_graph>",
	}}
	var asked []string
	ask := func(_ context.Context, msg string) (string, error) {
		asked = append(asked, msg)
		return "Go", nil
	}
	p := planner.New(prompts,
		planner.WithAsk(ask),
		planner.WithEngineOptions(runtime.WithStreamer(streamer)),
	)

	graph, err := p.Plan(context.Background(), "Write a CLI")
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Equal(t, "plan", graph.Name)
	assert.Equal(t, planner.PhaseExecuteGraph, p.Phase())
	assert.Equal(t, []string{"Which language?"}, asked)

	calls := streamer.prompts
	require.Len(t, calls, 5)
	assert.Equal(t, "system: Describe the task\n\nWrite a CLI", calls[0])
	assert.Contains(t, calls[1], "user: Go")
	assert.Contains(t, calls[2], "system: List the steps")
	assert.NotContains(t, calls[2], "user: Go", "records of earlier phases are hidden")
	assert.Contains(t, calls[3], "system: Build a graph")
	assert.Contains(t, calls[4], "task_manager: "+runtime.RetryMessage)
}

func TestPlan_NoGraph(t *testing.T) {
	streamer := &scripted{replies: []string{"Tell me more"}}
	p := planner.New(prompts, planner.WithEngineOptions(runtime.WithStreamer(streamer)))

	_, err := p.Plan(context.Background(), "Something")
	assert.ErrorIs(t, err, planner.ErrNoGraph)
	assert.Equal(t, planner.PhaseSpec, p.Phase())
}

func TestPlan_SessionFailure(t *testing.T) {
	p := planner.New(prompts, planner.WithEngineOptions(runtime.WithStreamer(&scripted{})))

	_, err := p.Plan(context.Background(), "Something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning session failed")
}

func TestExecute(t *testing.T) {
	p := planner.New(nil)
	graph := &domain.Node{Name: "solo", Variant: &domain.Script{Source: `env.Print("ran")`}}

	eng, st, err := p.Execute(context.Background(), graph)
	require.NoError(t, err)
	defer eng.Close()
	assert.True(t, st.Done)
	assert.Equal(t, "ran", graph.Variant.(*domain.Script).Output)
	assert.Equal(t, planner.PhaseComplete, p.Phase())
}

func TestFilterAndTags(t *testing.T) {
	p := planner.New(nil)
	assert.Equal(t, map[string]string{domain.MetaPhase: "spec"}, p.Tags(nil))
	assert.True(t, p.Filter(domain.Record{}))
	assert.True(t, p.Filter(domain.Record{Metadata: map[string]string{domain.MetaPhase: "spec"}}))
	assert.False(t, p.Filter(domain.Record{Metadata: map[string]string{domain.MetaPhase: "build_graph"}}))
	assert.Equal(t, "phase(9)", planner.Phase(9).String())
}
