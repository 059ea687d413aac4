/*
Package domain contains the core models of the tasktree engine.

It defines the task graph, the execution states of its nodes, and the
session records produced while model-backed nodes stream their responses.
This package is kept free of I/O, transport and persistence concerns.

# Key Entities

  - Node: a unit of work in the task graph, carrying one Variant.
  - Variant: the behavior-specific attributes (container, script, model, assist, disaggregator).
  - State: the per-node execution state (queued, ready, executing, complete, error).
  - Record: one conversational, artifact or instruction entry of a node session.
  - Checkpoint: a resumable snapshot of a traversal.
*/
package domain
