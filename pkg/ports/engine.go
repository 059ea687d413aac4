package ports

import (
	"context"

	"github.com/aretw0/tasktree/pkg/domain"
)

// Engine is the control surface exposed by the HTTP and MCP adapters.
type Engine interface {
	// Graph returns the encoded graph in its current state.
	Graph() ([]byte, error)

	// Status returns the cursor and per-node states.
	Status() *domain.Status

	// Step executes the active node and advances past it when it completes.
	Step(ctx context.Context) (*domain.Status, error)

	// Play steps until the graph is exhausted or a node fails.
	Play(ctx context.Context) (*domain.Status, error)

	// Rewind resets every node and moves the cursor back to the root.
	Rewind(ctx context.Context) (*domain.Status, error)

	// ResolveAssistance marks the assist node at path as resolved.
	ResolveAssistance(ctx context.Context, path []int) (*domain.Status, error)

	// Records returns the session records of the node at path.
	Records(path []int) ([]domain.Record, error)
}
