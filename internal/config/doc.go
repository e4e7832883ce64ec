// Package config loads, defaults, and validates the TOML configuration that
// drives the daemon, sessions, and the orchestrator.
package config
