package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"benchcheck/internal/analysis"
	"benchcheck/internal/artifact"
	"benchcheck/internal/fileutil"
	"benchcheck/internal/inference"
	"benchcheck/internal/media/ffprobe"
	"benchcheck/internal/services"
	"benchcheck/internal/testsupport"
)

type scriptedStep struct {
	det inference.Detection
	err error
}

type fakeSource struct {
	info  inference.VideoInfo
	steps []scriptedStep
	pos   int
}

func (f *fakeSource) Info() inference.VideoInfo { return f.info }

func (f *fakeSource) Next() (inference.Detection, error) {
	if f.pos >= len(f.steps) {
		return inference.Detection{}, io.EOF
	}
	step := f.steps[f.pos]
	f.pos++
	return step.det, step.err
}

func (f *fakeSource) Close() error { return nil }

type fakeClient struct {
	source  *fakeSource
	openErr error
}

func (f *fakeClient) Open(ctx context.Context, inputPath string) (inference.Source, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.source, nil
}

func fullDetection(frame int64, hipY, elbowY, barBottom float64) inference.Detection {
	return inference.Detection{
		Frame:     frame,
		Timestamp: float64(frame) / 30.0,
		Hip:       &inference.Keypoint{X: 640, Y: hipY, Confidence: 0.9},
		Elbow:     &inference.Keypoint{X: 520, Y: elbowY, Confidence: 0.9},
		Shoulder:  &inference.Keypoint{X: 500, Y: 250, Confidence: 0.9},
		Bench:     &inference.Box{Top: 430, Bottom: 520, Confidence: 0.9},
		Bar:       &inference.Box{Top: barBottom - 20, Bottom: barBottom, Confidence: 0.9},
	}
}

// goodRepSteps scripts a baseline, one deep rep, and a return to lockout.
func goodRepSteps(extra ...scriptedStep) []scriptedStep {
	var steps []scriptedStep
	frame := int64(0)
	push := func(hipY, elbowY, barBottom float64) {
		steps = append(steps, scriptedStep{det: fullDetection(frame, hipY, elbowY, barBottom)})
		frame++
	}
	for i := 0; i < 12; i++ {
		push(412, 300, 180)
	}
	for i := 0; i < 5; i++ {
		push(412, 251, 245)
	}
	for i := 0; i < 5; i++ {
		push(412, 300, 180)
	}
	return append(steps, extra...)
}

func stubProbe(t *testing.T) {
	t.Helper()
	original := probeVideo
	probeVideo = func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{
				CodecType:    "video",
				Width:        1280,
				Height:       720,
				AvgFrameRate: "30/1",
				NBFrames:     "22",
			}},
			Format: ffprobe.Format{Duration: "0.733"},
		}, nil
	}
	t.Cleanup(func() { probeVideo = original })
}

func stubFFmpeg(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		helperArgs := append([]string{"-test.run=TestFFmpegHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
}

func TestFFmpegHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)
	if os.Getenv("FFMPEG_HELPER_MODE") == "fail" {
		fmt.Fprintln(os.Stderr, "conversion failed")
		os.Exit(1)
	}
	// The stub "encodes" by creating the output file, which is the final
	// positional argument.
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) > 0 {
		_ = os.WriteFile(args[len(args)-1], []byte("encoded"), 0o644)
	}
}

func TestRunProducesVideoThenArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubProbe(t)
	stubFFmpeg(t, "ok")

	input := filepath.Join(cfg.Paths.VideoDir, "bench.mp4")
	output := filepath.Join(cfg.Paths.ProcessedDir, "bench_processed.mp4")
	testsupport.WriteFile(t, input, 128)

	source := &fakeSource{
		info:  inference.VideoInfo{TotalFrames: 22, FPS: 30, DurationSeconds: 0.733, Width: 1280, Height: 720},
		steps: goodRepSteps(),
	}
	sess := New(cfg, nil, WithClient(&fakeClient{source: source}))

	result, err := sess.Run(context.Background(), input, output)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Verdict.Overall != analysis.StatusGoodRep {
		t.Fatalf("expected GOOD REP, got %q", result.Verdict.Overall)
	}
	if result.TotalFrames != 22 || result.FPS != 30 {
		t.Fatalf("unexpected clip metadata: %+v", result)
	}

	if !fileutil.Exists(output) {
		t.Fatal("output video missing")
	}
	if !artifact.Ready(output) {
		t.Fatal("artifact must exist after the session")
	}

	loaded, err := artifact.Read(output)
	if err != nil {
		t.Fatalf("Read artifact: %v", err)
	}
	if loaded.OverallStatus != analysis.StatusGoodRep {
		t.Fatalf("artifact verdict mismatch: %+v", loaded)
	}
	if len(loaded.TimeSeriesData) != 22 {
		t.Fatalf("expected 22 time series points, got %d", len(loaded.TimeSeriesData))
	}
	if loaded.TimeSeriesData[0].HipY == nil || *loaded.TimeSeriesData[0].HipY != 412 {
		t.Fatalf("raw hip value lost: %+v", loaded.TimeSeriesData[0])
	}
}

func TestRunAllNullStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubProbe(t)
	stubFFmpeg(t, "ok")

	input := filepath.Join(cfg.Paths.VideoDir, "empty_room.mp4")
	output := filepath.Join(cfg.Paths.ProcessedDir, "empty_room_processed.mp4")
	testsupport.WriteFile(t, input, 128)

	// Every frame decodes but nothing is detected in any of them.
	var steps []scriptedStep
	for frame := int64(0); frame < 20; frame++ {
		steps = append(steps, scriptedStep{det: inference.Detection{Frame: frame, Timestamp: float64(frame) / 30.0}})
	}
	source := &fakeSource{info: inference.VideoInfo{TotalFrames: 20, FPS: 30}, steps: steps}
	sess := New(cfg, nil, WithClient(&fakeClient{source: source}))

	result, err := sess.Run(context.Background(), input, output)
	if err != nil {
		t.Fatalf("a lifter-free clip must not fail the session: %v", err)
	}
	if result.Verdict.Overall != analysis.StatusInsufficientData {
		t.Fatalf("expected INSUFFICIENT DATA, got %q", result.Verdict.Overall)
	}
	if result.Verdict.HipLiftStatus != analysis.StatusNoData || result.Verdict.ShallowRepStatus != analysis.StatusNoData {
		t.Fatalf("sub-statuses must be NO DATA: %+v", result.Verdict)
	}
	if result.Verdict.HipLiftDetected || result.Verdict.ShallowRepDetected {
		t.Fatalf("no fault flags without a baseline: %+v", result.Verdict)
	}

	if !fileutil.Exists(output) {
		t.Fatal("output video missing")
	}
	loaded, err := artifact.Read(output)
	if err != nil {
		t.Fatalf("Read artifact: %v", err)
	}
	if loaded.OverallStatus != analysis.StatusInsufficientData {
		t.Fatalf("artifact verdict mismatch: %+v", loaded)
	}
	if len(loaded.TimeSeriesData) != 20 {
		t.Fatalf("expected 20 time series points, got %d", len(loaded.TimeSeriesData))
	}
	for _, point := range loaded.TimeSeriesData {
		if point.HipY != nil || point.ElbowY != nil || point.ShoulderY != nil {
			t.Fatalf("frame %d must carry null keypoints: %+v", point.Frame, point)
		}
		if point.BenchDetected || point.BarDetected {
			t.Fatalf("frame %d must report no detections: %+v", point.Frame, point)
		}
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sess := New(cfg, nil, WithClient(&fakeClient{source: &fakeSource{}}))

	_, err := sess.Run(context.Background(), filepath.Join(cfg.Paths.VideoDir, "absent.mp4"), filepath.Join(cfg.Paths.ProcessedDir, "out.mp4"))
	if !errors.Is(err, services.ErrInputUnreadable) {
		t.Fatalf("expected ErrInputUnreadable, got %v", err)
	}
}

func TestRunProbeFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	original := probeVideo
	probeVideo = func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		return ffprobe.Result{}, errors.New("moov atom not found")
	}
	t.Cleanup(func() { probeVideo = original })

	input := filepath.Join(cfg.Paths.VideoDir, "corrupt.mp4")
	testsupport.WriteFile(t, input, 16)

	sess := New(cfg, nil, WithClient(&fakeClient{source: &fakeSource{}}))
	_, err := sess.Run(context.Background(), input, filepath.Join(cfg.Paths.ProcessedDir, "out.mp4"))
	if !errors.Is(err, services.ErrInputUnreadable) {
		t.Fatalf("expected ErrInputUnreadable, got %v", err)
	}
}

func TestRunEncodeFailureLeavesNoOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubProbe(t)
	stubFFmpeg(t, "fail")

	input := filepath.Join(cfg.Paths.VideoDir, "bench.mp4")
	output := filepath.Join(cfg.Paths.ProcessedDir, "bench_processed.mp4")
	testsupport.WriteFile(t, input, 128)

	source := &fakeSource{info: inference.VideoInfo{FPS: 30}, steps: goodRepSteps()}
	sess := New(cfg, nil, WithClient(&fakeClient{source: source}))

	_, err := sess.Run(context.Background(), input, output)
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
	if fileutil.Exists(output) {
		t.Fatal("failed encode must not leave an output video")
	}
	if artifact.Ready(output) {
		t.Fatal("failed encode must not leave an artifact")
	}
}

func TestRunDegradesFrameErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubProbe(t)
	stubFFmpeg(t, "ok")

	input := filepath.Join(cfg.Paths.VideoDir, "bench.mp4")
	output := filepath.Join(cfg.Paths.ProcessedDir, "bench_processed.mp4")
	testsupport.WriteFile(t, input, 128)

	steps := goodRepSteps(scriptedStep{
		det: inference.Detection{Frame: 22},
		err: &inference.FrameError{Frame: 22, Message: "pose estimation failed"},
	})
	source := &fakeSource{info: inference.VideoInfo{TotalFrames: 23, FPS: 30}, steps: steps}
	sess := New(cfg, nil, WithClient(&fakeClient{source: source}))

	result, err := sess.Run(context.Background(), input, output)
	if err != nil {
		t.Fatalf("frame error must not fail the session: %v", err)
	}
	if result.Verdict.Overall != analysis.StatusGoodRep {
		t.Fatalf("expected GOOD REP, got %q", result.Verdict.Overall)
	}

	loaded, err := artifact.Read(output)
	if err != nil {
		t.Fatalf("Read artifact: %v", err)
	}
	last := loaded.TimeSeriesData[len(loaded.TimeSeriesData)-1]
	if last.Frame != 22 || last.HipY != nil || last.BenchDetected {
		t.Fatalf("degraded frame must be null: %+v", last)
	}
}
