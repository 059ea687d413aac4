package tests

import (
	"testing"

	"github.com/aretw0/tasktree/pkg/ports"
)

// GraphLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.GraphLoader.
func GraphLoaderContractTest(t *testing.T, loader ports.GraphLoader, expected []byte) {
	t.Helper()

	t.Run("GetGraph_Success", func(t *testing.T) {
		content, err := loader.GetGraph()
		if err != nil {
			t.Fatalf("unexpected error getting graph: %v", err)
		}
		if string(content) != string(expected) {
			t.Errorf("content mismatch. got %q, want %q", content, expected)
		}
	})

	t.Run("GetGraph_Stable", func(t *testing.T) {
		first, err := loader.GetGraph()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := loader.GetGraph()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(first) != string(second) {
			t.Error("repeated loads returned different content")
		}
	})

	t.Run("Name", func(t *testing.T) {
		if loader.Name() == "" {
			t.Error("expected a non-empty loader name")
		}
	})
}
