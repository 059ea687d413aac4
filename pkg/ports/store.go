package ports

import (
	"context"

	"github.com/aretw0/tasktree/pkg/domain"
)

// CheckpointStore defines the interface for persisting traversal checkpoints.
// This allows for durable execution, enabling "Stop & Resume" workflows.
type CheckpointStore interface {
	// Save persists the checkpoint under its ID.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Load retrieves the checkpoint for a given ID.
	// Returns domain.ErrCheckpointNotFound if it does not exist.
	Load(ctx context.Context, id string) (*domain.Checkpoint, error)

	// Delete removes the checkpoint for a given ID.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of stored checkpoints.
	List(ctx context.Context) ([]string, error)
}
