package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior deep inside a session or poller.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.VideoDir) == "" {
		problems = append(problems, "paths.video_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ProcessedDir) == "" {
		problems = append(problems, "paths.processed_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}

	if c.Inference.ConfidenceThreshold <= 0 || c.Inference.ConfidenceThreshold >= 1 {
		problems = append(problems, "inference.confidence_threshold must be within (0, 1)")
	}
	if strings.TrimSpace(c.Inference.Binary) == "" {
		problems = append(problems, "inference.binary must be set")
	}

	if c.Analysis.HipLiftRatio <= 0 {
		problems = append(problems, "analysis.hip_lift_ratio must be positive")
	}
	if c.Analysis.ShallowRepRatio <= 0 {
		problems = append(problems, "analysis.shallow_rep_ratio must be positive")
	}
	if c.Analysis.SmoothingWindow < 1 {
		problems = append(problems, "analysis.smoothing_window must be at least 1")
	}
	if c.Analysis.BaselineFrames < 1 {
		problems = append(problems, "analysis.baseline_frames must be at least 1")
	}
	if c.Analysis.LockoutHysteresis < 0 {
		problems = append(problems, "analysis.lockout_hysteresis must not be negative")
	}

	if c.Orchestrator.PollIntervalSeconds < 1 {
		problems = append(problems, "orchestrator.poll_interval_seconds must be at least 1")
	}
	if c.Orchestrator.MaxPolls < 1 {
		problems = append(problems, "orchestrator.max_polls must be at least 1")
	}
	if c.Orchestrator.QueuePollSeconds < 1 {
		problems = append(problems, "orchestrator.queue_poll_seconds must be at least 1")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
