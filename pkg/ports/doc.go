/*
Package ports defines the driven ports (interfaces) for the tasktree engine.

These interfaces decouple the traversal core from external implementations, allowing
the engine to work with various graph sources, checkpoint backends, prompt libraries
and project layouts.

# Key Interfaces

  - GraphLoader: Responsible for loading the encoded task graph (e.g., from a file or memory).
  - CheckpointStore: Responsible for persisting and loading traversal checkpoints.
  - DistributedLocker: Provides distributed locking for concurrent checkpoint access.
  - Project: The root directory that artifacts are written to and registered in.
  - PromptLibrary: Looks up instruction prompts by tag.
  - Engine: The control surface consumed by the HTTP and MCP adapters.
*/
package ports
