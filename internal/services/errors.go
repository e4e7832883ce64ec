package services

import (
	"errors"
	"fmt"
	"strings"

	"benchcheck/internal/jobs"
)

var (
	// ErrInputUnreadable marks a missing or undecodable input video. Fatal for
	// the session, fails the job immediately.
	ErrInputUnreadable = errors.New("input unreadable")
	// ErrDetection marks a per-frame inference failure. Recovered inside the
	// session; the frame degrades to null detections.
	ErrDetection = errors.New("detection error")
	// ErrEncode marks an output video write/encode failure. Fatal.
	ErrEncode = errors.New("encode error")
	// ErrDispatch marks a synchronous dispatch failure (session unreachable).
	// Fails the job without entering the polling loop.
	ErrDispatch = errors.New("dispatch error")
	// ErrTimeout marks an exhausted completion-polling budget.
	ErrTimeout = errors.New("timeout")
	// ErrNotFound marks a missing job or resource.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = errors.New("service failure")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error must resolve the owning job to FAILED.
// Frame-level detection errors are the only recoverable class.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDetection)
}

// FailureStatus maps a session or dispatch error to the terminal job status
// the orchestrator should persist. Every fatal error lands on FAILED; the
// mapping exists so the classification stays in one place.
func FailureStatus(err error) jobs.Status {
	if err == nil {
		return jobs.StatusCompleted
	}
	return jobs.StatusFailed
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
