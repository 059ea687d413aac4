package file

import (
	"fmt"
	"os"
	"path/filepath"
)

// Loader implements ports.GraphLoader over a graph document on disk.
type Loader struct {
	path string
}

// NewLoader creates a loader for the document at path. The file is read on
// every GetGraph so edits are picked up between runs.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// GetGraph reads the document.
func (l *Loader) GetGraph() ([]byte, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", l.path, err)
	}
	return data, nil
}

// Name returns the file name without its extension.
func (l *Loader) Name() string {
	base := filepath.Base(l.path)
	return base[:len(base)-len(filepath.Ext(base))]
}
