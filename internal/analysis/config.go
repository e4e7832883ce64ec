package analysis

import "fmt"

// Config tunes the rep-phase classifier. All thresholds are injected; the
// package keeps no tunable state of its own.
type Config struct {
	// HipLiftRatio is the fraction of the baseline hip-bench gap the hip may
	// deviate upward before the lift is flagged.
	HipLiftRatio float64
	// ShallowRepRatio is the fraction of the lockout elbow-shoulder gap the
	// elbow must close to within for a rep to count as deep.
	ShallowRepRatio float64
	// SmoothingWindow is the trailing sample count averaged before any
	// threshold comparison.
	SmoothingWindow int
	// BaselineFrames is how many consecutive usable frames establish the
	// resting hip-bench baseline.
	BaselineFrames int
	// LockoutHysteresis is the bar travel in pixels that separates lockout
	// jitter from a real descent.
	LockoutHysteresis float64
}

// DefaultConfig mirrors the daemon's configured defaults.
func DefaultConfig() Config {
	return Config{
		HipLiftRatio:      0.5,
		ShallowRepRatio:   0.05,
		SmoothingWindow:   5,
		BaselineFrames:    10,
		LockoutHysteresis: 30,
	}
}

func (c Config) validate() error {
	if c.HipLiftRatio <= 0 {
		return fmt.Errorf("hip lift ratio must be positive, got %f", c.HipLiftRatio)
	}
	if c.ShallowRepRatio <= 0 || c.ShallowRepRatio >= 1 {
		return fmt.Errorf("shallow rep ratio must be in (0, 1), got %f", c.ShallowRepRatio)
	}
	if c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing window must be at least 1, got %d", c.SmoothingWindow)
	}
	if c.BaselineFrames < 1 {
		return fmt.Errorf("baseline frames must be at least 1, got %d", c.BaselineFrames)
	}
	if c.LockoutHysteresis <= 0 {
		return fmt.Errorf("lockout hysteresis must be positive, got %f", c.LockoutHysteresis)
	}
	return nil
}
