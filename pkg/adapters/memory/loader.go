package memory

import (
	"fmt"

	"github.com/aretw0/tasktree/internal/compiler"
	"github.com/aretw0/tasktree/pkg/domain"
)

// Loader implements ports.GraphLoader over an in-memory document.
type Loader struct {
	name string
	data []byte
}

// NewLoader creates a loader serving the raw tagged-tree document.
func NewLoader(name string, data []byte) *Loader {
	return &Loader{name: name, data: append([]byte(nil), data...)}
}

// NewFromNode encodes a graph built in code. Handy for tests and the DSL.
func NewFromNode(root *domain.Node) (*Loader, error) {
	data, err := compiler.Encode(root, compiler.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph %s: %w", root.Name, err)
	}
	return &Loader{name: root.Name, data: data}, nil
}

// GetGraph returns a copy of the document.
func (l *Loader) GetGraph() ([]byte, error) {
	return append([]byte(nil), l.data...), nil
}

// Name returns the label given at construction.
func (l *Loader) Name() string {
	if l.name == "" {
		return "memory"
	}
	return l.name
}
