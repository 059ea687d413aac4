package domain

import "errors"

// ErrNotFound is returned for a missing variable, file, referenced node or markup argument.
var ErrNotFound = errors.New("not found")

// ErrProtocol is returned for malformed payloads, unsupported dialects, transport failures and timeouts.
var ErrProtocol = errors.New("protocol error")

// ErrExecution is returned when a scripted routine faults.
var ErrExecution = errors.New("execution error")

// ErrState is returned when the reference grammar or a state rule is violated.
var ErrState = errors.New("state error")

// ErrBusy is returned when a node already has a conversation in flight.
var ErrBusy = errors.New("node busy")

// ErrAssistanceRequired is recorded on assist nodes that are not yet resolved.
var ErrAssistanceRequired = errors.New("assistance required")

// ErrCheckpointNotFound is returned when a checkpoint ID cannot be found in the store.
var ErrCheckpointNotFound = errors.New("checkpoint not found")
