package project_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aretw0/tasktree/pkg/adapters/project"
	"github.com/aretw0/tasktree/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Project = (*project.Dir)(nil)

func TestRegisterFile_IdempotentAndPersisted(t *testing.T) {
	root := t.TempDir()
	p, err := project.Open(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), p.Name())
	ctx := context.Background()

	require.NoError(t, p.RegisterFile(ctx, "src/main.go"))
	require.NoError(t, p.RegisterFile(ctx, "README.md"))
	require.NoError(t, p.RegisterFile(ctx, "src/./main.go"))
	assert.Equal(t, []string{"src/main.go", "README.md"}, p.Files())

	data, err := os.ReadFile(filepath.Join(root, project.ManifestPath))
	require.NoError(t, err)
	assert.Contains(t, string(data), "src/main.go")

	reopened, err := project.Open(root)
	require.NoError(t, err)
	assert.Equal(t, p.Files(), reopened.Files())
}

func TestRegisterFile_RejectsEscapes(t *testing.T) {
	p, err := project.Open(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, p.RegisterFile(context.Background(), "../outside.txt"))
	assert.Empty(t, p.Files())
}

func TestRegisterFile_Concurrent(t *testing.T) {
	p, err := project.Open(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.RegisterFile(context.Background(), "same.txt"))
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"same.txt"}, p.Files())
}

func TestOpen_BadManifest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".tasktree"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, project.ManifestPath), []byte("files: [unterminated"), 0644))

	_, err := project.Open(root)
	assert.Error(t, err)
}
