package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"benchcheck/internal/services"
)

func TestConsoleHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger = NewComponentLogger(logger, "orchestrator")
	logger.Info("dispatch accepted", Int64(FieldJobID, 42), String("output", "/tmp/out.mp4"))

	line := buf.String()
	if !strings.Contains(line, "INFO orchestrator: dispatch accepted") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "job_id=42") {
		t.Fatalf("expected job_id attribute, got %q", line)
	}
	if !strings.Contains(line, "output=/tmp/out.mp4") {
		t.Fatalf("expected output attribute, got %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Warn("poll pending", String("detail", "video present, artifact missing"))

	if !strings.Contains(buf.String(), `detail="video present, artifact missing"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Fatalf("info line leaked: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	base := slog.New(newConsoleHandler(&buf, levelVar))

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithStage(ctx, "analysis")
	WithContext(ctx, base).Info("stage started")

	line := buf.String()
	if !strings.Contains(line, "job_id=7") || !strings.Contains(line, "stage=analysis") {
		t.Fatalf("expected context fields, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
