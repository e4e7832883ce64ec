// Package daemon runs benchcheck as a long-lived background service: the
// job store, queue manager, and HTTP API under one lifecycle, guarded by a
// flock lock so only one instance runs per host.
package daemon
