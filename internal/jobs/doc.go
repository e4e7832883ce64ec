// Package jobs persists analysis jobs and their per-frame time series in
// SQLite. Status transitions are expressed as conditional UPDATE statements
// so the lifecycle only moves forward (PENDING → PROCESSING → COMPLETED or
// FAILED) and concurrent readers never observe a transition in between.
package jobs
