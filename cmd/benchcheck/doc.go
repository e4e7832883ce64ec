// Package main hosts the benchcheck CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the foreground daemon, one-shot video
// analysis, job queue maintenance, configuration scaffolding, and
// notification checks. It centralizes configuration resolution and store
// access so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
