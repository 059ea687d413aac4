package validator_test

import (
	"testing"

	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/internal/validator"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validGraph = `
name: build
type: container
children:
  - name: setup
    type: script
    source: 'env.Set("lang", "go")'
    outputs: [lang]
  - name: work
    type: container
    children:
      - name: draft
        type: model
        prompt: Write code
        inputs: [lang, "node_output://../../setup", "asset://README.md"]
      - name: plan
        type: disaggregator
        prompt: Split it
      - name: review
        type: assist
        inputs: ["node_output://../plan/step1", "node_output:///work/draft", "node_output://draft"]
`

func parse(t *testing.T, doc string) *domain.Node {
	t.Helper()
	root, err := compiler.NewParser(nil).Parse([]byte(doc))
	require.NoError(t, err)
	return root
}

func TestValidateGraph_Valid(t *testing.T) {
	assert.NoError(t, validator.ValidateGraph(parse(t, validGraph)))
}

func TestValidateGraph_Issues(t *testing.T) {
	root := &domain.Node{Name: "build", Variant: &domain.Container{}, Children: []*domain.Node{
		{Name: "a", Variant: &domain.Script{Source: " "}},
		{Name: "a", Variant: &domain.Model{}, Inputs: []string{"node_output://../later"}},
		{Name: "", Variant: &domain.Assist{}, Inputs: []string{"asset://../secret", "node_output://../../x"}},
		{Name: "later", Variant: &domain.Assist{}, Inputs: []string{
			"node_output://../later", "node_output://missing", "node_output://a/../b",
		}},
	}}

	err := validator.ValidateGraph(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrState)

	var verr *validator.Error
	require.ErrorAs(t, err, &verr)
	var msgs []string
	for _, is := range verr.Issues {
		msgs = append(msgs, is.String())
	}
	assert.ElementsMatch(t, []string{
		"a (0): script source is empty",
		"a (1): duplicate sibling name \"a\"",
		"a (1): model node has neither a prompt nor prompt tags",
		" (2): node has no name",
		"a (1): input \"node_output://../later\": node \"later\" runs after the reader",
		" (2): input \"asset://../secret\": path escapes the project root",
		" (2): input \"node_output://../../x\": path pops past the graph root",
		"later (3): input \"node_output://../later\": a node cannot read its own outputs",
		"later (3): input \"node_output://missing\": no child \"missing\" under \"build\"",
		"later (3): input \"node_output://a/../b\": \"..\" may only lead the path",
	}, msgs)
}

func TestValidateGraph_Root(t *testing.T) {
	err := validator.ValidateGraph(&domain.Node{Name: "solo", Variant: &domain.Script{Source: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root must be a container")

	err = validator.ValidateGraph(nil)
	assert.Contains(t, err.Error(), "graph is empty")

	err = validator.ValidateGraph(&domain.Node{Name: "r", Variant: &domain.Container{}, Children: []*domain.Node{
		{Name: "s", Variant: &domain.Script{Source: "x"}, Children: []*domain.Node{{Name: "c", Variant: &domain.Container{}}}},
	}})
	assert.Contains(t, err.Error(), "script nodes cannot have children")
}
