package session

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"benchcheck/internal/logging"
	"benchcheck/internal/services"
)

var startCommand = func(cmd *exec.Cmd) error { return cmd.Start() }

// Dispatcher hands a video off for analysis and returns immediately. The
// work completes (or fails) out of band; callers learn the outcome by
// watching for the session's output artifacts.
type Dispatcher interface {
	Dispatch(ctx context.Context, inputPath, outputPath string) error
}

// LocalDispatcher launches a detached `benchcheck analyze` process on this
// host. The child is released so it survives the parent and is never
// reaped here.
type LocalDispatcher struct {
	executable string
	configPath string
	logger     *slog.Logger
}

// NewLocalDispatcher builds a dispatcher that re-invokes the current
// executable. configPath, when non-empty, is forwarded so the child loads
// the same configuration.
func NewLocalDispatcher(configPath string, logger *slog.Logger) *LocalDispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	executable, err := os.Executable()
	if err != nil {
		executable = "benchcheck"
	}
	return &LocalDispatcher{
		executable: executable,
		configPath: configPath,
		logger:     logger.With(logging.String(logging.FieldComponent, "dispatcher")),
	}
}

// Dispatch starts the analysis child and returns without waiting. A failure
// to start is the only error surface; anything after Start is out of band.
func (d *LocalDispatcher) Dispatch(ctx context.Context, inputPath, outputPath string) error {
	if strings.TrimSpace(inputPath) == "" || strings.TrimSpace(outputPath) == "" {
		return services.Wrap(services.ErrDispatch, "dispatcher", "dispatch", "input and output paths required", nil)
	}

	args := []string{"analyze", "--input", inputPath, "--output", outputPath}
	if d.configPath != "" {
		args = append(args, "--config", d.configPath)
	}

	// Deliberately not CommandContext: the child must outlive this call and
	// any request-scoped context that triggered it.
	cmd := exec.Command(d.executable, args...) //nolint:gosec
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := startCommand(cmd); err != nil {
		return services.Wrap(services.ErrDispatch, "dispatcher", "dispatch", "start analysis process", err)
	}
	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
		if err := cmd.Process.Release(); err != nil {
			d.logger.WarnContext(ctx, "release analysis process", logging.Error(err), logging.Int("pid", pid))
		}
	}

	d.logger.InfoContext(ctx, "analysis dispatched",
		logging.String("input", inputPath),
		logging.String("output", outputPath),
		logging.Int("pid", pid))
	return nil
}

var _ Dispatcher = (*LocalDispatcher)(nil)
