package ports

import (
	"context"

	"github.com/aretw0/tasktree/pkg/domain"
)

// PromptLibrary looks up instruction prompts.
type PromptLibrary interface {
	// Find returns the active prompts whose tags are all contained in tags.
	Find(ctx context.Context, tags []string) ([]domain.Prompt, error)
}
