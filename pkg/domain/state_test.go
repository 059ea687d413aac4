package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateQueued, StateReady, true},
		{StateQueued, StateExecuting, true},
		{StateReady, StateExecuting, true},
		{StateExecuting, StateComplete, true},
		{StateExecuting, StateError, true},
		{StateComplete, StateExecuting, true},
		{StateError, StateExecuting, true},
		{StateComplete, StateQueued, true},
		{StateQueued, StateComplete, false},
		{StateReady, StateError, false},
		{StateExecuting, StateReady, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_RejectsSkippingExecution(t *testing.T) {
	n := &Node{Name: "a"}

	err := Transition(n, StateComplete)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrState))
	assert.Equal(t, StateQueued, n.State)

	require.NoError(t, Transition(n, StateExecuting))
	require.NoError(t, Transition(n, StateComplete))
	assert.Equal(t, StateComplete, n.State)
}

func TestParseState(t *testing.T) {
	s, err := ParseState("")
	require.NoError(t, err)
	assert.Equal(t, StateQueued, s)

	_, err = ParseState("done")
	assert.ErrorIs(t, err, ErrState)
}

func TestPromptMatches(t *testing.T) {
	p := Prompt{Tags: []string{"spec", "coding"}}

	assert.True(t, p.Matches([]string{"coding", "spec", "extra"}))
	assert.False(t, p.Matches([]string{"spec"}))
	assert.False(t, Prompt{}.Matches([]string{"spec"}))
}

func TestNodeHelpers(t *testing.T) {
	root := &Node{Name: "root", Variant: Container{}, Children: []*Node{
		{Name: "a", Variant: &Script{}},
		{Name: "b", Variant: &Disaggregator{}},
	}}

	assert.True(t, root.AllowsChildren())
	assert.False(t, root.Children[0].AllowsChildren())
	assert.True(t, root.Children[1].AllowsChildren())
	assert.Equal(t, KindDisaggregator, root.Children[1].Kind())

	c, ok := root.Child("b")
	require.True(t, ok)
	assert.Equal(t, "b", c.Name)

	var names []string
	root.Walk(func(n *Node) bool {
		names = append(names, n.Name)
		return true
	})
	assert.Equal(t, []string{"root", "a", "b"}, names)

	root.AddOutput("x")
	root.AddOutput("x")
	assert.Equal(t, []string{"x"}, root.Outputs)
}

func TestDiff(t *testing.T) {
	old := &Status{Cursor: []int{0}, Nodes: []NodeStatus{
		{Path: "0", Name: "a", State: StateExecuting},
		{Path: "1", Name: "b", State: StateQueued},
	}}
	cur := &Status{Cursor: []int{1}, Nodes: []NodeStatus{
		{Path: "0", Name: "a", State: StateComplete},
		{Path: "1", Name: "b", State: StateQueued},
	}}

	diff := Diff(old, cur)
	require.NotNil(t, diff)
	assert.Equal(t, []int{1}, diff.Cursor)
	assert.Nil(t, diff.Done)
	require.Len(t, diff.Nodes, 1)
	assert.Equal(t, StateComplete, diff.Nodes[0].State)

	assert.Nil(t, Diff(cur, cur))

	full := Diff(nil, cur)
	require.NotNil(t, full)
	assert.Len(t, full.Nodes, 2)
}
