package runtime_test

import (
	"testing"

	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(name string) *domain.Node {
	return &domain.Node{Name: name, Variant: &domain.Script{}}
}

func group(name string, children ...*domain.Node) *domain.Node {
	return &domain.Node{Name: name, Variant: &domain.Container{}, Children: children}
}

// tree:
//
//	root
//	├── a
//	│   ├── a1
//	│   └── a2
//	│       └── a2x
//	├── b
//	└── c
//	    └── c1
func sampleTree() *domain.Node {
	return group("root",
		group("a", leaf("a1"), group("a2", leaf("a2x"))),
		leaf("b"),
		group("c", leaf("c1")),
	)
}

func TestAdvance_VisitsPreOrderOnce(t *testing.T) {
	trees := map[string]*domain.Node{
		"single": leaf("only"),
		"flat":   group("root", leaf("x"), leaf("y"), leaf("z")),
		"deep":   group("root", group("l1", group("l2", group("l3", leaf("l4"))))),
		"mixed":  sampleTree(),
	}

	for name, root := range trees {
		t.Run(name, func(t *testing.T) {
			var want []string
			root.Walk(func(n *domain.Node) bool {
				want = append(want, n.Name)
				return true
			})

			c := runtime.NewContext(root)
			got := []string{c.Current().Name}
			for c.Advance() {
				got = append(got, c.Current().Name)
			}

			assert.Equal(t, want, got)
			assert.True(t, c.Done())
			assert.Empty(t, c.Cursor())
			assert.False(t, c.Advance(), "exhausted context stays exhausted")
		})
	}
}

func TestVariables_ReleasedOnBacktrack(t *testing.T) {
	root := sampleTree()
	c := runtime.NewContext(root)

	setAt := map[string]string{"a1": "v_a1", "a2x": "v_a2x", "a2": "v_a2", "b": "v_b", "c1": "v_c1"}
	owners := map[string]*domain.Node{}

	for {
		cur := c.Current()
		if name, ok := setAt[cur.Name]; ok {
			c.Set(name, cur.Name)
			owners[name] = cur
		}

		switch cur.Name {
		case "a2x":
			// Earlier sibling subtrees remain visible until their level is left.
			_, err := c.Get("v_a1")
			assert.NoError(t, err)
		case "b":
			for _, v := range []string{"v_a1", "v_a2", "v_a2x"} {
				_, err := c.Get(v)
				assert.ErrorIs(t, err, domain.ErrNotFound, v)
			}
		case "c1":
			_, err := c.Get("v_b")
			assert.NoError(t, err, "siblings see each other's variables")
		}

		if !c.Advance() {
			break
		}
	}

	for name, owner := range owners {
		_, err := c.Get(name)
		assert.ErrorIs(t, err, domain.ErrNotFound, name)
		assert.Empty(t, owner.Owned)
	}
}

func TestSet_OwnershipIsFirstWriter(t *testing.T) {
	root := group("root", leaf("a"), leaf("b"))
	c := runtime.NewContext(root)

	require.True(t, c.Advance())
	c.Set("x", 1)
	require.True(t, c.Advance())
	c.Set("x", 2)

	v, err := c.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, []string{"x"}, root.Children[0].Owned)
	assert.Empty(t, root.Children[1].Owned)

	c.ClearNodeVariables(root.Children[0])
	c.ClearNodeVariables(root.Children[0])
	_, err = c.Get("x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdvance_ClearsStaleVariablesOnEntry(t *testing.T) {
	root := group("root", leaf("a"))
	c := runtime.NewContext(root)

	require.True(t, c.Advance())
	c.Set("stale", true)
	c.Reset()

	root.Children[0].Owned = []string{"stale"}
	require.True(t, c.Advance())
	assert.Empty(t, root.Children[0].Owned)
}

func TestObserve(t *testing.T) {
	c := runtime.NewContext(group("root", leaf("a")))

	var moves []string
	c.Observe(func(cursor []int, node *domain.Node, done bool) {
		if done {
			moves = append(moves, "done")
			return
		}
		moves = append(moves, node.Name)
	})

	for c.Advance() {
	}
	assert.Equal(t, []string{"a", "done"}, moves)
}

func TestVariablesAndRestore(t *testing.T) {
	root := sampleTree()
	c := runtime.NewContext(root)
	require.True(t, c.Advance())
	require.True(t, c.Advance())
	c.Set("k", "v")

	snapshot := c.Variables()
	require.Len(t, snapshot, 1)
	assert.Equal(t, []int{0, 0}, snapshot[0].Owner)

	other := runtime.NewContext(root)
	require.NoError(t, other.Restore(c.Cursor(), false, snapshot))
	assert.Equal(t, "a1", other.Current().Name)
	v, err := other.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	assert.ErrorIs(t, other.Restore([]int{7}, false, nil), domain.ErrState)
}
