package dsl_test

import (
	"testing"

	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Tree(t *testing.T) {
	b := dsl.New("release").Describe("ship it")
	b.Script("collect", `env.Set("version", "1.4.0")`).Outputs("version", "version")

	docs := b.Group("docs")
	docs.Model("changelog", "Write the changelog").
		Backend("local").
		UseModel("qwen").
		Tags("code generation").
		SaveTo("changelog").
		Limits(512, 30).
		Inputs("version", "node_output://../../collect")
	docs.Assist("review", "Proofread CHANGELOG.md")
	b.Disaggregate("rollout", "Plan the rollout").Retries(2).Backend("claude")

	root, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "ship it", root.Description)
	require.Len(t, root.Children, 3)
	assert.Equal(t, []string{"version"}, root.Children[0].Outputs)

	group := root.Children[1]
	assert.Equal(t, domain.KindContainer, group.Kind())
	m := group.Children[0].Variant.(*domain.Model)
	assert.Equal(t, domain.Model{
		Backend: "local", Model: "qwen", Prompt: "Write the changelog",
		PromptTags: []string{"code generation"}, ResponseVariable: "changelog",
		MaxTokens: 512, TimeoutSeconds: 30,
	}, *m)

	d := root.Children[2].Variant.(*domain.Disaggregator)
	assert.Equal(t, 2, d.MaxRetries)
	assert.Equal(t, "claude", d.Backend)
}

func TestBuilder_IgnoresInapplicableSetters(t *testing.T) {
	b := dsl.New("root")
	n := b.Script("s", "x").Backend("local").Retries(3).Tags("t")
	assert.Equal(t, &domain.Script{Source: "x"}, n.Node().Variant)
}

func TestBuilder_Invalid(t *testing.T) {
	b := dsl.New("root")
	b.Script("dup", "x")
	b.Script("dup", "y")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrState)
	assert.Contains(t, err.Error(), "duplicate sibling name")
}

func TestBuilder_Loader(t *testing.T) {
	b := dsl.New("pipeline")
	b.Script("hello", `env.Print("hi")`)

	loader, err := b.Loader()
	require.NoError(t, err)
	assert.Equal(t, "pipeline", loader.Name())

	data, err := loader.GetGraph()
	require.NoError(t, err)
	root, err := compiler.NewParser(nil).Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", root.Children[0].Name)
	assert.Equal(t, `env.Print("hi")`, root.Children[0].Variant.(*domain.Script).Source)
}
