package ports

// GraphLoader defines how the engine retrieves the encoded task graph.
// This allows the storage layer (file, memory) to be decoupled.
type GraphLoader interface {
	// GetGraph returns the raw tagged-tree document (JSON or YAML).
	GetGraph() ([]byte, error)

	// Name returns a descriptive label for the graph source.
	Name() string
}
