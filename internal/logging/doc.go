// Package logging wires log/slog with the console and JSON handlers used
// across the daemon, plus attr helpers and context-derived job fields.
package logging
