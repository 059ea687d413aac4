package runner_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/tasktree"
	"github.com/aretw0/tasktree/pkg/adapters/memory"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/dsl"
	"github.com/aretw0/tasktree/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, b *dsl.Builder, store *memory.Store) *tasktree.Engine {
	t.Helper()
	root, err := b.Build()
	require.NoError(t, err)
	opts := []tasktree.Option{tasktree.WithGraph(root)}
	if store != nil {
		opts = append(opts, tasktree.WithCheckpointStore(store))
	}
	eng, err := tasktree.New("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func reviewGraph() *dsl.Builder {
	b := dsl.New("release")
	b.Script("build", `env.Print("built")`)
	b.Assist("review", "Read the changelog")
	b.Script("publish", `env.Print("published")`)
	return b
}

func answers(lines ...string) *runner.TextPrompter {
	return runner.NewTextPrompter(strings.NewReader(strings.Join(lines, "\n")+"\n"), &bytes.Buffer{})
}

func TestRun_ResolvesAssistance(t *testing.T) {
	store := memory.NewStore()
	eng := newEngine(t, reviewGraph(), store)

	r := runner.New(eng,
		runner.WithPrompter(answers("maybe", "d")),
		runner.WithTaskID("task-1"),
		runner.WithSignals(false),
	)
	require.NoError(t, r.Run(context.Background()))
	assert.True(t, eng.Status().Done)

	cp, err := store.Load(context.Background(), "task-1")
	require.NoError(t, err)
	assert.True(t, cp.Done)
}

func TestRun_Headless(t *testing.T) {
	eng := newEngine(t, reviewGraph(), nil)

	err := runner.New(eng, runner.WithSignals(false)).Run(context.Background())
	var stopped *runner.StoppedError
	require.ErrorAs(t, err, &stopped)
	assert.Equal(t, "review", stopped.Node)
	assert.Equal(t, "1", stopped.Path)
	assert.ErrorIs(t, err, domain.ErrAssistanceRequired)
	assert.Contains(t, stopped.Message, "Read the changelog")
}

func TestRun_RetryThenQuit(t *testing.T) {
	b := dsl.New("flaky")
	b.Script("fail", `return env.Errorf("boom")`)
	store := memory.NewStore()
	eng := newEngine(t, b, store)
	out := &bytes.Buffer{}

	r := runner.New(eng,
		runner.WithPrompter(answers("r", "q")),
		runner.WithOutput(out),
		runner.WithTaskID("flaky-1"),
		runner.WithSignals(false),
	)
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrQuit)
	assert.Contains(t, out.String(), "Resume with --resume --task-id flaky-1")

	cp, err := store.Load(context.Background(), "flaky-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, cp.Cursor)
	assert.False(t, cp.Done)
}

func TestRun_EndOfInputQuits(t *testing.T) {
	eng := newEngine(t, reviewGraph(), nil)
	r := runner.New(eng, runner.WithPrompter(runner.NewTextPrompter(strings.NewReader(""), &bytes.Buffer{})), runner.WithSignals(false))
	assert.ErrorIs(t, r.Run(context.Background()), runner.ErrQuit)
}

func TestRun_CancelledContext(t *testing.T) {
	eng := newEngine(t, reviewGraph(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runner.New(eng, runner.WithSignals(false)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_SkipsSaveWithoutStore(t *testing.T) {
	b := dsl.New("solo")
	b.Script("only", `env.Print("x")`)
	eng := newEngine(t, b, nil)

	r := runner.New(eng, runner.WithTaskID("ignored"), runner.WithSignals(false))
	assert.NoError(t, r.Run(context.Background()))
}
