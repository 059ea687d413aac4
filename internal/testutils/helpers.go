// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// PromptVault initializes an unversioned loam vault in a temp dir and seeds
// it with prompts, a map from relative file name to markdown document.
func PromptVault(t *testing.T, prompts map[string]string) (string, core.Repository) {
	t.Helper()
	dir, err := filepath.Abs(t.TempDir())
	require.NoError(t, err)

	repo, err := loam.Init(dir, loam.WithVersioning(false))
	require.NoError(t, err, "init prompt vault")
	WriteFiles(t, dir, prompts)
	return dir, repo
}

// WriteFiles writes name to content pairs under dir, creating subdirectories.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// WriteGraph writes a graph document named file into a fresh temp dir and
// returns its path.
func WriteGraph(t *testing.T, file, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), file)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
