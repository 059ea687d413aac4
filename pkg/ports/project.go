package ports

import "context"

// Project is the workspace that artifacts are written into.
type Project interface {
	// Root returns the absolute project root directory.
	Root() string

	// RegisterFile records a file relative to the root. Registering an
	// already known name is a no-op.
	RegisterFile(ctx context.Context, name string) error

	// Files lists the registered names in registration order.
	Files() []string
}
