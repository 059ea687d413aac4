/*
Package observability provides tools for monitoring the tasktree engine.

Metrics turns the engine's lifecycle hooks into Prometheus collectors: node
state transitions, node durations, cursor advances, session records and model
turns. Attach them with runtime.WithLifecycleHooks and serve Handler on /metrics.
*/
package observability
