package runtime_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/tasktree/internal/runtime"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirProject struct {
	root  string
	files []string
}

func (p *dirProject) Root() string { return p.root }
func (p *dirProject) RegisterFile(ctx context.Context, name string) error {
	for _, f := range p.files {
		if f == name {
			return nil
		}
	}
	p.files = append(p.files, name)
	return nil
}
func (p *dirProject) Files() []string { return p.files }

// resolverTree positions the cursor on root/stage/current, with completed
// siblings "sibling" and "stage2" holding outputs.
func resolverTree(t *testing.T) (*runtime.Context, *domain.Node) {
	t.Helper()
	sibling := leaf("sibling")
	sibling.Outputs = []string{"answer"}
	current := leaf("current")
	pending := leaf("pending")
	root := group("root",
		group("stage", sibling, current, pending),
		group("stage2"),
	)

	c := runtime.NewContext(root)
	require.True(t, c.Advance()) // stage
	require.True(t, c.Advance()) // sibling
	c.Set("answer", 42)
	sibling.State = domain.StateComplete
	require.True(t, c.Advance()) // current
	require.Equal(t, "current", c.Current().Name)
	return c, root
}

func TestResolve_BareName(t *testing.T) {
	c, _ := resolverTree(t)
	r := runtime.NewResolver(c, nil)

	v, err := r.Resolve("answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_NodeOutput(t *testing.T) {
	c, root := resolverTree(t)
	root.State = domain.StateComplete
	root.Children[0].State = domain.StateComplete
	r := runtime.NewResolver(c, nil)
	before := c.Cursor()

	tests := []struct {
		name    string
		ref     string
		want    any
		wantErr error
	}{
		{"relative sibling", "node_output://../sibling", map[string]any{"answer": 42}, nil},
		{"bare sibling", "node_output://sibling", map[string]any{"answer": 42}, nil},
		{"dot sibling", "node_output://./sibling", map[string]any{"answer": 42}, nil},
		{"absolute", "node_output:///stage/sibling", map[string]any{"answer": 42}, nil},
		{"grandparent child", "node_output://../../stage/sibling", map[string]any{"answer": 42}, nil},
		{"bare path is not absolute", "node_output://stage/sibling", nil, domain.ErrNotFound},
		{"parent itself", "node_output://..", map[string]any{}, nil},
		{"root", "node_output:///", map[string]any{}, nil},
		{"unknown sibling", "node_output://../nobody", nil, domain.ErrNotFound},
		{"not yet executed", "node_output://../pending", nil, domain.ErrState},
		{"past root", "node_output://../../../x", nil, domain.ErrState},
		{"dots mid path", "node_output://stage/../sibling", nil, domain.ErrState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := r.Resolve(tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
	assert.Equal(t, before, c.Cursor(), "resolution never moves the live cursor")
}

func TestSplitNodePath(t *testing.T) {
	tests := []struct {
		ref       string
		cursor    []int
		wantBase  []int
		wantNames []string
	}{
		{"node_output://b", []int{0, 1}, []int{0}, []string{"b"}},
		{"node_output://../b", []int{0, 1}, []int{0}, []string{"b"}},
		{"node_output://../../b/c", []int{0, 1}, []int{}, []string{"b", "c"}},
		{"node_output:///b/c", []int{0, 1}, []int{}, []string{"b", "c"}},
		{"node_output://b", nil, nil, []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			base, names, err := runtime.SplitNodePath(tt.ref, tt.cursor)
			require.NoError(t, err)
			assert.Len(t, base, len(tt.wantBase))
			assert.Equal(t, tt.wantBase, base[:len(tt.wantBase)])
			assert.Equal(t, tt.wantNames, names)
		})
	}

	_, _, err := runtime.SplitNodePath("node_output://../x", nil)
	var perr *runtime.PathError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, domain.ErrState)
	assert.Equal(t, "path pops past the graph root", perr.Msg)
}

func TestResolve_Asset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "a.md"), []byte("# A"), 0644))

	c, _ := resolverTree(t)
	r := runtime.NewResolver(c, &dirProject{root: dir})

	v, err := r.Resolve("asset://docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, "# A", v)

	_, err = r.Resolve("asset://docs/missing.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Resolve("asset://../outside.txt")
	assert.ErrorIs(t, err, domain.ErrState)

	_, err = runtime.NewResolver(c, nil).Resolve("asset://docs/a.md")
	assert.ErrorIs(t, err, domain.ErrState)
}

func TestDescribe(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spec.txt"), []byte("body"), 0644))

	c, _ := resolverTree(t)
	r := runtime.NewResolver(c, &dirProject{root: dir})

	got, err := r.Describe("answer")
	require.NoError(t, err)
	assert.Equal(t, []string{"<input answer>42</input>"}, got)

	got, err = r.Describe("asset://spec.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"<project_file asset://spec.txt>body</project_file>"}, got)

	got, err = r.Describe("node_output://../sibling")
	require.NoError(t, err)
	assert.Equal(t, []string{"<node_output node=node_output://../sibling output=answer>42</node_output>"}, got)
}
