package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Client launches the vision sidecar for a video and exposes its detections.
type Client interface {
	Open(ctx context.Context, inputPath string) (Source, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default sidecar binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithModel points the sidecar at a specific model weights file.
func WithModel(path string) Option {
	return func(c *CLI) {
		c.modelPath = path
	}
}

// WithConfidenceThreshold sets the keypoint acceptance threshold.
func WithConfidenceThreshold(threshold float64) Option {
	return func(c *CLI) {
		if threshold > 0 {
			c.threshold = threshold
		}
	}
}

// CLI wraps the benchvision command-line sidecar.
type CLI struct {
	binary    string
	modelPath string
	threshold float64
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "benchvision", threshold: 0.5}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Open starts the sidecar against the input video and returns a Source that
// streams its per-frame detections. Closing the source terminates the
// subprocess.
func (c *CLI) Open(ctx context.Context, inputPath string) (Source, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, errors.New("input path required")
	}

	args := []string{"analyze", "--input", inputPath, "--json"}
	if c.modelPath != "" {
		args = append(args, "--model", c.modelPath)
	}
	args = append(args, "--confidence", strconv.FormatFloat(c.threshold, 'f', -1, 64))

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.binary, err)
	}

	stream, err := NewStream(stdout, c.threshold)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%s stream: %w", c.binary, err)
	}
	return &process{stream: stream, cmd: cmd}, nil
}

type process struct {
	stream *Stream
	cmd    *exec.Cmd
}

func (p *process) Info() VideoInfo {
	return p.stream.Info()
}

func (p *process) Next() (Detection, error) {
	det, err := p.stream.Next()
	if errors.Is(err, io.EOF) {
		// A clean end of stream still requires a zero exit status. The
		// stream keeps returning io.EOF afterwards; wait only once.
		if p.cmd != nil {
			waitErr := p.cmd.Wait()
			p.cmd = nil
			if waitErr != nil {
				return Detection{}, fmt.Errorf("sidecar exited: %w", waitErr)
			}
		}
		return Detection{}, io.EOF
	}
	return det, err
}

func (p *process) Close() error {
	err := p.stream.Close()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
		p.cmd = nil
	}
	return err
}

var _ Client = (*CLI)(nil)
var _ Source = (*process)(nil)
