// Package orchestrator owns the analysis job lifecycle. It claims PENDING
// jobs, dispatches analysis out of process, and detects completion by
// polling for the session's output video and result artifact within a
// bounded budget.
package orchestrator
