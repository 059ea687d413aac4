package script_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(vars map[string]any) *script.Env {
	return script.NewEnv(
		func(ref string) (any, error) {
			if v, ok := vars[ref]; ok {
				return v, nil
			}
			return nil, domain.ErrNotFound
		},
		func(name string, v any) { vars[name] = v },
	)
}

func TestRun_BodyUsesEnv(t *testing.T) {
	vars := map[string]any{"x": "hello"}
	body := `
	v, err := env.Input("x")
	if err != nil {
		return err
	}
	env.Set("y", v)
	env.Printf("got %v", v)
	`

	out, err := script.New().Run(context.Background(), body, newEnv(vars))
	require.NoError(t, err)
	assert.Equal(t, "got hello", out)
	assert.Equal(t, "hello", vars["y"])
}

func TestRun_FullSourceWithAllowedImports(t *testing.T) {
	src := `package main

import (
	"fmt"
	"strings"
	"tasktree"
)

func Run(env *tasktree.Env) error {
	fmt.Println(strings.ToUpper("hi"))
	env.Set("done", true)
	return nil
}
`
	vars := map[string]any{}
	out, err := script.New().Run(context.Background(), src, newEnv(vars))
	require.NoError(t, err)
	assert.Equal(t, "HI\n", out)
	assert.Equal(t, true, vars["done"])
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		stage string
	}{
		{"syntax error", `this is not go`, "compile"},
		{"returned error", `return env.Errorf("bad %d", 1)`, "run"},
		{"missing input", `_, err := env.Input("nope"); return err`, "run"},
		{
			name: "forbidden import",
			body: "package main\n\nimport (\n\t\"os\"\n\t\"tasktree\"\n)\n\nfunc Run(env *tasktree.Env) error {\n\tos.Exit(1)\n\treturn nil\n}\n",
			stage: "compile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.New().Run(context.Background(), tt.body, newEnv(map[string]any{}))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrExecution)

			var serr *script.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.stage, serr.Stage)
		})
	}
}

func TestRun_PanicIsAnError(t *testing.T) {
	body := `var m map[string]int
	m["a"] = 1`
	_, err := script.New().Run(context.Background(), body, newEnv(map[string]any{}))
	assert.ErrorIs(t, err, domain.ErrExecution)
}

func TestRun_ContextDeadline(t *testing.T) {
	src := `package main

import (
	"tasktree"
	"time"
)

func Run(env *tasktree.Env) error {
	time.Sleep(2 * time.Second)
	return nil
}
`
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := script.New().Run(ctx, src, newEnv(map[string]any{}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSource(t *testing.T) {
	body := script.Source(`env.Print("x")`)
	assert.Contains(t, body, `import "tasktree"`)
	assert.Contains(t, body, "func Run(env *tasktree.Env) error {")
	full := "package main\nfunc Run() {}"
	assert.Equal(t, full, script.Source(full))
}
