package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"benchcheck/internal/analysis"
	"benchcheck/internal/artifact"
	"benchcheck/internal/config"
	"benchcheck/internal/fileutil"
	"benchcheck/internal/inference"
	"benchcheck/internal/jobs"
	"benchcheck/internal/logging"
	"benchcheck/internal/media/ffprobe"
	"benchcheck/internal/overlay"
	"benchcheck/internal/services"
)

var (
	commandContext = exec.CommandContext
	probeVideo     = ffprobe.Inspect
)

// Result summarizes one completed analysis session.
type Result struct {
	Verdict         analysis.Verdict
	TotalFrames     int64
	FPS             float64
	DurationSeconds float64
	OutputPath      string
	ArtifactPath    string
}

// Option configures a Session.
type Option func(*Session)

// WithClient overrides the inference sidecar client.
func WithClient(client inference.Client) Option {
	return func(s *Session) {
		if client != nil {
			s.client = client
		}
	}
}

// Session runs one video through detection, classification, overlay burn-in,
// and artifact publication. It owns no job state; the orchestrator watches
// the filesystem for its outputs.
type Session struct {
	cfg    *config.Config
	client inference.Client
	logger *slog.Logger
}

// New builds a session from the daemon configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	sess := &Session{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "session")),
		client: inference.NewCLI(
			inference.WithBinary(cfg.Inference.Binary),
			inference.WithModel(cfg.Inference.ModelPath),
			inference.WithConfidenceThreshold(cfg.Inference.ConfidenceThreshold),
		),
	}
	for _, opt := range opts {
		opt(sess)
	}
	return sess
}

// Run analyzes inputPath and produces the annotated video at outputPath plus
// its sidecar artifact. The artifact lands strictly after the video so a
// watcher that sees the artifact can rely on the video being complete.
func (s *Session) Run(ctx context.Context, inputPath, outputPath string) (Result, error) {
	if strings.TrimSpace(inputPath) == "" || strings.TrimSpace(outputPath) == "" {
		return Result{}, services.Wrap(services.ErrInputUnreadable, "session", "run", "input and output paths required", nil)
	}
	if !fileutil.Exists(inputPath) {
		return Result{}, services.Wrap(services.ErrInputUnreadable, "session", "probe", fmt.Sprintf("input %s missing", inputPath), nil)
	}

	probe, err := probeVideo(ctx, s.cfg.FFprobeBinary(), inputPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInputUnreadable, "session", "probe", "ffprobe failed", err)
	}
	if _, ok := probe.VideoStream(); !ok {
		return Result{}, services.Wrap(services.ErrInputUnreadable, "session", "probe", "no video stream", nil)
	}

	s.logger.InfoContext(ctx, "analysis session started",
		logging.String("input", inputPath),
		logging.String("output", outputPath),
		logging.Float64("fps", probe.FPS()))

	classifier, err := analysis.NewClassifier(analysis.Config{
		HipLiftRatio:      s.cfg.Analysis.HipLiftRatio,
		ShallowRepRatio:   s.cfg.Analysis.ShallowRepRatio,
		SmoothingWindow:   s.cfg.Analysis.SmoothingWindow,
		BaselineFrames:    s.cfg.Analysis.BaselineFrames,
		LockoutHysteresis: s.cfg.Analysis.LockoutHysteresis,
	})
	if err != nil {
		return Result{}, fmt.Errorf("build classifier: %w", err)
	}

	points, timeline, info, err := s.classify(ctx, classifier, inputPath, probe)
	if err != nil {
		return Result{}, err
	}

	verdict := classifier.Verdict()
	duration := info.DurationSeconds
	if duration <= 0 {
		duration = probe.DurationSeconds()
	}
	totalFrames := info.TotalFrames
	if totalFrames <= 0 {
		totalFrames = int64(len(points))
	}
	fps := info.FPS
	if fps <= 0 {
		fps = probe.FPS()
	}

	width, height := probe.Dimensions()
	doc := overlay.Document{
		Width:  width,
		Height: height,
		Events: timeline.Finish(duration),
	}
	if err := s.encode(ctx, inputPath, outputPath, doc); err != nil {
		return Result{}, err
	}

	result := Result{
		Verdict:         verdict,
		TotalFrames:     totalFrames,
		FPS:             fps,
		DurationSeconds: duration,
		OutputPath:      outputPath,
		ArtifactPath:    artifact.SidecarPath(outputPath),
	}
	if err := artifact.Write(outputPath, buildArtifact(result, points)); err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "session", "artifact", "write result artifact", err)
	}

	s.logger.InfoContext(ctx, "analysis session finished",
		logging.String("overall", verdict.Overall),
		logging.Int64("frames", totalFrames),
		logging.Int("reps", verdict.Reps))
	return result, nil
}

// classify drains the sidecar stream, feeding the classifier and recording
// the raw time series and verdict timeline.
func (s *Session) classify(ctx context.Context, classifier *analysis.Classifier, inputPath string, probe ffprobe.Result) ([]jobs.TimeSeriesPoint, *overlay.Timeline, inference.VideoInfo, error) {
	source, err := s.client.Open(ctx, inputPath)
	if err != nil {
		return nil, nil, inference.VideoInfo{}, services.Wrap(services.ErrInputUnreadable, "session", "detect", "start sidecar", err)
	}
	defer source.Close()

	info := source.Info()
	fps := info.FPS
	if fps <= 0 {
		fps = probe.FPS()
	}

	timeline := overlay.NewTimeline()
	var points []jobs.TimeSeriesPoint
	for {
		det, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var frameErr *inference.FrameError
		if errors.As(err, &frameErr) {
			// A single bad frame degrades to an empty detection.
			s.logger.WarnContext(ctx, "frame detection failed",
				logging.Int64("frame", frameErr.Frame),
				logging.Error(services.Wrap(services.ErrDetection, "session", "detect", frameErr.Message, nil)))
			det = inference.Detection{Frame: frameErr.Frame, Timestamp: frameTimestamp(frameErr.Frame, fps)}
		} else if err != nil {
			return nil, nil, info, services.Wrap(services.ErrInputUnreadable, "session", "detect", "sidecar stream", err)
		}

		if det.Timestamp == 0 && det.Frame > 0 {
			det.Timestamp = frameTimestamp(det.Frame, fps)
		}
		snapshot := classifier.Observe(det)
		points = append(points, detectionPoint(det))
		timeline.Observe(det.Timestamp, snapshot.Verdict)
	}
	return points, timeline, info, nil
}

// encode burns the overlay into the input with a single ffmpeg pass. The
// output is written to a temp path and renamed so a partially encoded file
// is never observable at the final path.
func (s *Session) encode(ctx context.Context, inputPath, outputPath string, doc overlay.Document) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return services.Wrap(services.ErrEncode, "session", "encode", "create output directory", err)
	}

	assPath := tempSibling(outputPath, ".ass")
	if err := os.WriteFile(assPath, []byte(doc.Render()), 0o644); err != nil {
		return services.Wrap(services.ErrEncode, "session", "encode", "write overlay document", err)
	}
	defer os.Remove(assPath)

	tempOutput := tempSibling(outputPath, filepath.Ext(outputPath))
	defer os.Remove(tempOutput)

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-vf", "ass=" + assPath,
		"-c:v", "libx264",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-c:a", "copy",
		tempOutput,
	}
	cmd := commandContext(ctx, s.cfg.FFmpegBinary(), args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return services.Wrap(services.ErrEncode, "session", "encode",
			fmt.Sprintf("ffmpeg failed: %s", strings.TrimSpace(string(output))), err)
	}

	if err := os.Rename(tempOutput, outputPath); err != nil {
		return services.Wrap(services.ErrEncode, "session", "encode", "publish output video", err)
	}
	return nil
}

func buildArtifact(result Result, points []jobs.TimeSeriesPoint) artifact.Result {
	entries := make([]artifact.TimeSeriesEntry, 0, len(points))
	for _, point := range points {
		entries = append(entries, artifact.TimeSeriesEntry{
			Frame:         point.Frame,
			Timestamp:     point.TimestampSeconds,
			HipY:          point.HipY,
			ElbowY:        point.ElbowY,
			ShoulderY:     point.ShoulderY,
			BenchDetected: point.BenchDetected,
			BarDetected:   point.BarDetected,
		})
	}
	return artifact.Result{
		OverallStatus:      result.Verdict.Overall,
		HipLiftDetected:    result.Verdict.HipLiftDetected,
		HipLiftStatus:      result.Verdict.HipLiftStatus,
		ShallowRepDetected: result.Verdict.ShallowRepDetected,
		ShallowRepStatus:   result.Verdict.ShallowRepStatus,
		TotalFrames:        result.TotalFrames,
		FPS:                result.FPS,
		VideoDuration:      result.DurationSeconds,
		TimeSeriesData:     entries,
	}
}

// detectionPoint records the raw per-frame values, unsmoothed.
func detectionPoint(det inference.Detection) jobs.TimeSeriesPoint {
	point := jobs.TimeSeriesPoint{
		Frame:            det.Frame,
		TimestampSeconds: det.Timestamp,
		BenchDetected:    det.Bench != nil,
		BarDetected:      det.Bar != nil,
	}
	if det.Hip != nil {
		y := det.Hip.Y
		point.HipY = &y
	}
	if det.Elbow != nil {
		y := det.Elbow.Y
		point.ElbowY = &y
	}
	if det.Shoulder != nil {
		y := det.Shoulder.Y
		point.ShoulderY = &y
	}
	return point
}

func frameTimestamp(frame int64, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frame) / fps
}

func tempSibling(path, ext string) string {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(dir, "."+base+".tmp"+ext)
}
