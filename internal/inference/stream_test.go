package inference

import (
	"errors"
	"io"
	"strings"
	"testing"
)

const sampleStream = `{"type":"video","total_frames":3,"fps":30.0,"duration":0.1,"width":1280,"height":720}
{"type":"frame","frame":0,"timestamp":0.0,"hip":{"x":640,"y":412.5,"confidence":0.91},"elbow":{"x":520,"y":300,"confidence":0.88},"shoulder":{"x":500,"y":250,"confidence":0.93},"bench":{"detected":true,"top":430,"bottom":520,"confidence":0.8},"bar":{"detected":true,"top":180,"bottom":200,"confidence":0.7}}
{"type":"frame","frame":1,"timestamp":0.033,"hip":{"x":640,"y":412.5,"confidence":0.2},"bench":{"detected":true,"top":430,"bottom":520,"confidence":0.3},"bar":{"detected":false,"confidence":0.9}}
{"type":"frame","frame":2,"timestamp":0.066}
`

func TestStreamHeader(t *testing.T) {
	stream, err := NewStream(strings.NewReader(sampleStream), 0.5)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	info := stream.Info()
	if info.TotalFrames != 3 || info.FPS != 30.0 || info.Width != 1280 {
		t.Fatalf("unexpected header: %+v", info)
	}
}

func TestStreamThresholdsKeypoints(t *testing.T) {
	stream, err := NewStream(strings.NewReader(sampleStream), 0.5)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	first, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Hip == nil || first.Hip.Y != 412.5 {
		t.Fatalf("expected confident hip keypoint, got %+v", first.Hip)
	}
	if first.Bench == nil || first.Bench.Top != 430 {
		t.Fatalf("expected bench box on frame 0, got %+v", first.Bench)
	}
	if first.Bar == nil || first.Bar.Bottom != 200 {
		t.Fatalf("expected bar box on frame 0, got %+v", first.Bar)
	}

	second, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Hip != nil {
		t.Fatal("low-confidence hip must be dropped")
	}
	if second.Bench != nil {
		t.Fatal("low-confidence bench must not count as detected")
	}
	if second.Bar != nil {
		t.Fatal("undetected bar must stay absent regardless of confidence")
	}

	third, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if third.Hip != nil || third.Elbow != nil || third.Shoulder != nil {
		t.Fatal("frame without landmarks must yield nil keypoints")
	}

	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestStreamSkipsChatter(t *testing.T) {
	input := "loading model weights\n" +
		`{"type":"video","total_frames":1,"fps":30.0,"duration":0.03}` + "\n" +
		"not json either\n" +
		`{"type":"frame","frame":0,"timestamp":0.0}` + "\n"

	stream, err := NewStream(strings.NewReader(input), 0.5)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	det, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if det.Frame != 0 {
		t.Fatalf("unexpected frame %d", det.Frame)
	}
}

func TestStreamErrorLine(t *testing.T) {
	input := `{"type":"video","total_frames":2,"fps":30.0,"duration":0.06}` + "\n" +
		`{"type":"frame","frame":0,"timestamp":0.0}` + "\n" +
		`{"type":"error","frame":1,"message":"decode failure"}` + "\n"

	stream, err := NewStream(strings.NewReader(input), 0.5)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if _, err := stream.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	det, err := stream.Next()
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameError, got %v", err)
	}
	if fe.Frame != 1 || !strings.Contains(fe.Message, "decode failure") {
		t.Fatalf("unexpected frame error %+v", fe)
	}
	if det.Frame != 1 {
		t.Fatalf("degraded detection should carry the frame number, got %+v", det)
	}
	// The stream stays usable after a frame error.
	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after error line, got %v", err)
	}
}

func TestStreamWithoutHeader(t *testing.T) {
	if _, err := NewStream(strings.NewReader(""), 0.5); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
	input := `{"type":"frame","frame":0,"timestamp":0.0}` + "\n"
	if _, err := NewStream(strings.NewReader(input), 0.5); err == nil {
		t.Fatal("expected error when first line is not the header")
	}
}
