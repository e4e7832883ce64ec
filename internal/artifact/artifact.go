package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"benchcheck/internal/fileutil"
	"benchcheck/internal/jobs"
)

// Result is the JSON sidecar written next to the annotated output video.
// Field names follow the artifact wire format consumed by the frontend.
type Result struct {
	OverallStatus      string            `json:"overall_status"`
	HipLiftDetected    bool              `json:"hip_lift_detected"`
	HipLiftStatus      string            `json:"hip_lift_status"`
	ShallowRepDetected bool              `json:"shallow_rep_detected"`
	ShallowRepStatus   string            `json:"shallow_rep_status"`
	TotalFrames        int64             `json:"total_frames"`
	FPS                float64           `json:"fps"`
	VideoDuration      float64           `json:"video_duration"`
	TimeSeriesData     []TimeSeriesEntry `json:"time_series_data"`
}

// TimeSeriesEntry is one frame of landmark data in the artifact.
type TimeSeriesEntry struct {
	Frame         int64    `json:"frame"`
	Timestamp     float64  `json:"timestamp"`
	HipY          *float64 `json:"hip_y"`
	ElbowY        *float64 `json:"elbow_y"`
	ShoulderY     *float64 `json:"shoulder_y"`
	BenchDetected bool     `json:"bench_detected"`
	BarDetected   bool     `json:"bar_detected"`
}

// SidecarPath maps an output video path to its result artifact path.
func SidecarPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".json"
}

// Write persists the artifact atomically next to the output video. The
// artifact is written once; an existing sidecar is an error because a second
// session for the same output must never run.
func Write(videoPath string, result Result) error {
	path := SidecarPath(videoPath)
	if fileutil.Exists(path) {
		return fmt.Errorf("artifact already exists at %s", path)
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Read loads the artifact for the given output video.
func Read(videoPath string) (Result, error) {
	path := SidecarPath(videoPath)
	payload, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read artifact: %w", err)
	}
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return result, nil
}

// Ready reports whether analysis of the given output video has finished:
// both the annotated video and its sidecar artifact must exist. A video
// without its artifact is still being finalized.
func Ready(videoPath string) bool {
	return fileutil.Exists(videoPath) && fileutil.Exists(SidecarPath(videoPath))
}

// CompletionResult converts the artifact's verdict fields into the shape the
// job store persists on COMPLETED.
func (r Result) CompletionResult() jobs.CompletionResult {
	return jobs.CompletionResult{
		OverallStatus:      r.OverallStatus,
		HipLiftDetected:    r.HipLiftDetected,
		HipLiftStatus:      r.HipLiftStatus,
		ShallowRepDetected: r.ShallowRepDetected,
		ShallowRepStatus:   r.ShallowRepStatus,
		TotalFrames:        r.TotalFrames,
		FPS:                r.FPS,
		DurationSeconds:    r.VideoDuration,
	}
}

// Points converts the artifact time series into store rows.
func (r Result) Points() []jobs.TimeSeriesPoint {
	points := make([]jobs.TimeSeriesPoint, 0, len(r.TimeSeriesData))
	for _, entry := range r.TimeSeriesData {
		points = append(points, jobs.TimeSeriesPoint{
			Frame:            entry.Frame,
			TimestampSeconds: entry.Timestamp,
			HipY:             entry.HipY,
			ElbowY:           entry.ElbowY,
			ShoulderY:        entry.ShoulderY,
			BenchDetected:    entry.BenchDetected,
			BarDetected:      entry.BarDetected,
		})
	}
	return points
}
