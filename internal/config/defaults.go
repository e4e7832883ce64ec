package config

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			VideoDir:     "~/.local/share/benchcheck/videos",
			ProcessedDir: "~/.local/share/benchcheck/processed",
			LogDir:       "~/.local/share/benchcheck/logs",
			APIBind:      "127.0.0.1:7878",
		},
		Inference: Inference{
			Binary:              "benchvision",
			ConfidenceThreshold: 0.5,
		},
		Analysis: Analysis{
			HipLiftRatio:      0.5,
			ShallowRepRatio:   0.05,
			SmoothingWindow:   5,
			BaselineFrames:    10,
			LockoutHysteresis: 30,
		},
		Orchestrator: Orchestrator{
			PollIntervalSeconds: 5,
			MaxPolls:            120,
			QueuePollSeconds:    5,
			DispatchTimeoutSecs: 30,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.VideoDir,
		&c.Paths.ProcessedDir,
		&c.Paths.LogDir,
		&c.Inference.ModelPath,
	} {
		if *field == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}
