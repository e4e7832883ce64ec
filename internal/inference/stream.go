package inference

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Wire-level line shapes emitted by the sidecar. Every line is a JSON object
// tagged with a type field; the video header always precedes frame lines.
type wireLine struct {
	Type      string        `json:"type"`
	Frame     int64         `json:"frame"`
	Timestamp float64       `json:"timestamp"`
	Hip       *Keypoint     `json:"hip"`
	Elbow     *Keypoint     `json:"elbow"`
	Shoulder  *Keypoint     `json:"shoulder"`
	Bench     *wireObject   `json:"bench"`
	Bar       *wireObject   `json:"bar"`
	Message   string        `json:"message"`
	Video     wireVideoInfo `json:"-"`
}

type wireObject struct {
	Detected   bool    `json:"detected"`
	Top        float64 `json:"top"`
	Bottom     float64 `json:"bottom"`
	Confidence float64 `json:"confidence"`
}

type wireVideoInfo struct {
	TotalFrames int64   `json:"total_frames"`
	FPS         float64 `json:"fps"`
	Duration    float64 `json:"duration"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

// Stream decodes the sidecar's JSONL protocol from an io.Reader and applies
// the confidence threshold to keypoints and object flags.
type Stream struct {
	scanner   *bufio.Scanner
	closer    io.Closer
	info      VideoInfo
	threshold float64
	err       error
}

// NewStream wraps the reader and consumes the leading video header line.
func NewStream(r io.Reader, confidenceThreshold float64) (*Stream, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	stream := &Stream{scanner: scanner, threshold: confidenceThreshold}
	if closer, ok := r.(io.Closer); ok {
		stream.closer = closer
	}

	header, err := stream.nextLine()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read stream header: %w", err)
	}
	if header.Type != "video" {
		return nil, fmt.Errorf("unexpected first line type %q", header.Type)
	}
	stream.info = VideoInfo{
		TotalFrames:     header.Video.TotalFrames,
		FPS:             header.Video.FPS,
		DurationSeconds: header.Video.Duration,
		Width:           header.Video.Width,
		Height:          header.Video.Height,
	}
	return stream, nil
}

// Info returns the clip metadata from the header line.
func (s *Stream) Info() VideoInfo {
	return s.info
}

// Next returns the next frame detection and io.EOF once the stream drains.
// A sidecar failure for a single frame comes back as a *FrameError; the
// stream stays usable and the caller decides how to degrade that frame.
func (s *Stream) Next() (Detection, error) {
	if s.err != nil {
		return Detection{}, s.err
	}
	for {
		line, err := s.nextLine()
		if err != nil {
			s.err = err
			return Detection{}, err
		}
		switch line.Type {
		case "frame":
			return s.frameDetection(line), nil
		case "error":
			return Detection{Frame: line.Frame}, &FrameError{Frame: line.Frame, Message: line.Message}
		default:
			// Unknown line types are ignored so the protocol can grow.
			continue
		}
	}
}

// Close releases the underlying reader when it supports closing.
func (s *Stream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *Stream) frameDetection(line wireLine) Detection {
	return Detection{
		Frame:     line.Frame,
		Timestamp: line.Timestamp,
		Hip:       s.acceptKeypoint(line.Hip),
		Elbow:     s.acceptKeypoint(line.Elbow),
		Shoulder:  s.acceptKeypoint(line.Shoulder),
		Bench:     s.acceptBox(line.Bench),
		Bar:       s.acceptBox(line.Bar),
	}
}

func (s *Stream) acceptBox(obj *wireObject) *Box {
	if obj == nil || !obj.Detected || obj.Confidence < s.threshold {
		return nil
	}
	return &Box{Top: obj.Top, Bottom: obj.Bottom, Confidence: obj.Confidence}
}

func (s *Stream) acceptKeypoint(kp *Keypoint) *Keypoint {
	if kp == nil || kp.Confidence < s.threshold {
		return nil
	}
	copied := *kp
	return &copied
}

func (s *Stream) nextLine() (wireLine, error) {
	for s.scanner.Scan() {
		raw := strings.TrimSpace(s.scanner.Text())
		if raw == "" {
			continue
		}
		var line wireLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			// Non-JSON chatter on the pipe is skipped, matching how the
			// sidecar interleaves diagnostics with protocol lines.
			continue
		}
		if line.Type == "video" {
			if err := json.Unmarshal([]byte(raw), &line.Video); err != nil {
				return wireLine{}, fmt.Errorf("decode video header: %w", err)
			}
		}
		return line, nil
	}
	if err := s.scanner.Err(); err != nil {
		return wireLine{}, err
	}
	return wireLine{}, io.EOF
}

var _ Source = (*Stream)(nil)

// ErrNoHeader reports a stream that ended before announcing its video header.
var ErrNoHeader = errors.New("inference stream ended before header")

// FrameError reports a sidecar failure confined to one frame.
type FrameError struct {
	Frame   int64
	Message string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("sidecar frame %d: %s", e.Frame, e.Message)
}
