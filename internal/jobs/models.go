package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an analysis job. Transitions only move
// forward: PENDING → PROCESSING → COMPLETED or FAILED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Job represents an analysis job persisted in SQLite.
type Job struct {
	ID         int64
	Status     Status
	InputPath  string
	OutputPath string

	// Result fields, populated only on COMPLETED.
	OverallStatus      string
	HipLiftDetected    bool
	HipLiftStatus      string
	ShallowRepDetected bool
	ShallowRepStatus   string
	TotalFrames        int64
	FPS                float64
	DurationSeconds    float64

	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TimeSeriesPoint is a single per-frame measurement. Position fields are nil
// when the corresponding landmark was not detected in that frame.
type TimeSeriesPoint struct {
	Frame            int64
	TimestampSeconds float64
	HipY             *float64
	ElbowY           *float64
	ShoulderY        *float64
	BenchDetected    bool
	BarDetected      bool
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status ends the job lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsProcessing reports whether the job has a session in flight.
func (j Job) IsProcessing() bool {
	return j.Status == StatusProcessing
}
