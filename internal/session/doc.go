// Package session runs a single video end to end: probe, sidecar detection,
// rep classification, overlay burn-in, and artifact publication. Sessions
// run out of process from the orchestrator; the local dispatcher launches
// them as detached analyze commands.
package session
