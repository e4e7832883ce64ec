package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream, or false when none exists.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// FPS returns the average frame rate of the first video stream, or 0.
func (r Result) FPS() float64 {
	stream, ok := r.VideoStream()
	if !ok {
		return 0
	}
	return parseRational(stream.AvgFrameRate)
}

// FrameCount returns the declared frame count of the first video stream.
// Falls back to duration×fps when the container omits nb_frames.
func (r Result) FrameCount() int64 {
	stream, ok := r.VideoStream()
	if !ok {
		return 0
	}
	if frames, err := strconv.ParseInt(strings.TrimSpace(stream.NBFrames), 10, 64); err == nil && frames > 0 {
		return frames
	}
	fps := parseRational(stream.AvgFrameRate)
	duration := r.DurationSeconds()
	if fps > 0 && duration > 0 {
		return int64(duration * fps)
	}
	return 0
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	if v := parseFloat(r.Format.Duration); v > 0 {
		return v
	}
	if stream, ok := r.VideoStream(); ok {
		return parseFloat(stream.Duration)
	}
	return 0
}

// Dimensions returns the width and height of the first video stream.
func (r Result) Dimensions() (int, int) {
	stream, ok := r.VideoStream()
	if !ok {
		return 0, 0
	}
	return stream.Width, stream.Height
}

func parseRational(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "0/0" {
		return 0
	}
	if num, den, found := strings.Cut(cleaned, "/"); found {
		n := parseFloat(num)
		d := parseFloat(den)
		if d == 0 {
			return 0
		}
		return n / d
	}
	return parseFloat(cleaned)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return parsed
}
