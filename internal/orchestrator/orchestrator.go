package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"benchcheck/internal/artifact"
	"benchcheck/internal/config"
	"benchcheck/internal/jobs"
	"benchcheck/internal/logging"
	"benchcheck/internal/notifications"
	"benchcheck/internal/services"
	"benchcheck/internal/session"
)

// Ack is the immediate acknowledgment returned by StartAnalysis. Analysis
// itself finishes long after this value is returned.
type Ack struct {
	JobID   int64
	Status  jobs.Status
	Message string
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithPollInterval overrides the completion poll cadence, mainly for tests.
func WithPollInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// Orchestrator owns the job lifecycle: it claims jobs, hands the work to an
// out-of-process session, and watches the filesystem for the session's
// outputs. It never observes the session directly.
type Orchestrator struct {
	cfg        *config.Config
	store      *jobs.Store
	dispatcher session.Dispatcher
	notifier   notifications.Service
	logger     *slog.Logger

	pollInterval time.Duration
	maxPolls     int

	mu      sync.Mutex
	done    chan struct{}
	pollers sync.WaitGroup
}

// New builds an orchestrator over the given store and dispatcher.
func New(cfg *config.Config, store *jobs.Store, dispatcher session.Dispatcher, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	o := &Orchestrator{
		cfg:          cfg,
		store:        store,
		dispatcher:   dispatcher,
		notifier:     notifier,
		logger:       logger.With(logging.String(logging.FieldComponent, "orchestrator")),
		pollInterval: time.Duration(cfg.Orchestrator.PollIntervalSeconds) * time.Second,
		maxPolls:     cfg.Orchestrator.MaxPolls,
		done:         make(chan struct{}),
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 5 * time.Second
	}
	if o.maxPolls <= 0 {
		o.maxPolls = 120
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OutputPath derives the annotated video location for an input. The mapping
// is deterministic so the poller can find the session's outputs without any
// channel back from the session itself.
func OutputPath(processedDir, inputPath string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(processedDir, stem+"_processed.mp4")
}

// StartAnalysis moves a PENDING job to PROCESSING, dispatches the analysis,
// and starts the completion poller. Calling it again for a job already in
// flight (or terminal) is a no-op acknowledgment; a second session is never
// dispatched for the same job.
func (o *Orchestrator) StartAnalysis(ctx context.Context, jobID int64) (Ack, error) {
	ctx = services.WithJobID(ctx, jobID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, o.logger)

	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		return Ack{}, fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job == nil {
		return Ack{}, services.Wrap(services.ErrNotFound, "orchestrator", "start", fmt.Sprintf("job %d", jobID), nil)
	}

	outputPath := OutputPath(o.cfg.Paths.ProcessedDir, job.InputPath)
	claimed, err := o.store.ClaimProcessing(ctx, jobID, outputPath)
	if err != nil {
		return Ack{}, fmt.Errorf("claim job %d: %w", jobID, err)
	}
	if !claimed {
		current, err := o.store.GetByID(ctx, jobID)
		if err != nil || current == nil {
			return Ack{JobID: jobID, Status: job.Status, Message: "already handled"}, err
		}
		logger.InfoContext(ctx, "analysis already underway or finished",
			logging.String("status", string(current.Status)))
		return Ack{JobID: jobID, Status: current.Status, Message: "already handled"}, nil
	}

	if err := o.dispatcher.Dispatch(ctx, job.InputPath, outputPath); err != nil {
		logger.ErrorContext(ctx, "dispatch failed", logging.Error(err))
		if _, markErr := o.store.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			logger.ErrorContext(ctx, "mark dispatch failure", logging.Error(markErr))
		}
		if notifyErr := o.notifier.NotifyAnalysisFailed(ctx, job.InputPath, err); notifyErr != nil {
			logger.WarnContext(ctx, "failure notification", logging.Error(notifyErr))
		}
		return Ack{}, err
	}

	if err := o.notifier.NotifyAnalysisStarted(ctx, job.InputPath); err != nil {
		logger.WarnContext(ctx, "start notification", logging.Error(err))
	}
	logger.InfoContext(ctx, "analysis dispatched",
		logging.String("input", job.InputPath),
		logging.String("output", outputPath))

	o.pollers.Add(1)
	go func() {
		defer o.pollers.Done()
		o.pollCompletion(ctx, jobID, job.InputPath, outputPath)
	}()

	return Ack{JobID: jobID, Status: jobs.StatusProcessing, Message: "processing_started"}, nil
}

// pollCompletion watches for the session's output video and artifact. The
// video alone means the session is still finalizing, so the poller keeps
// waiting for its whole budget and re-checks once more at exhaustion before
// declaring a timeout.
func (o *Orchestrator) pollCompletion(ctx context.Context, jobID int64, inputPath, outputPath string) {
	// Detach from the request: the poll outlives whichever API call or CLI
	// invocation started the job.
	ctx = services.WithJobID(context.WithoutCancel(ctx), jobID)
	logger := logging.WithContext(ctx, o.logger)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for poll := 0; poll < o.maxPolls; poll++ {
		select {
		case <-o.done:
			logger.WarnContext(ctx, "poller stopped before completion", logging.Int("polls", poll))
			return
		case <-ticker.C:
		}
		if artifact.Ready(outputPath) {
			o.finalize(ctx, jobID, inputPath, outputPath)
			return
		}
	}

	// Last resort before giving up: the artifact may have landed between
	// the final tick and now.
	if artifact.Ready(outputPath) {
		o.finalize(ctx, jobID, inputPath, outputPath)
		return
	}

	budget := time.Duration(o.maxPolls) * o.pollInterval
	err := services.Wrap(services.ErrTimeout, "orchestrator", "poll",
		fmt.Sprintf("analysis did not complete within %s", budget), nil)
	logger.ErrorContext(ctx, "analysis timed out", logging.Error(err))
	if _, markErr := o.store.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
		logger.ErrorContext(ctx, "mark timeout failure", logging.Error(markErr))
	}
	if notifyErr := o.notifier.NotifyAnalysisFailed(ctx, inputPath, err); notifyErr != nil {
		logger.WarnContext(ctx, "failure notification", logging.Error(notifyErr))
	}
}

func (o *Orchestrator) finalize(ctx context.Context, jobID int64, inputPath, outputPath string) {
	logger := logging.WithContext(ctx, o.logger)

	result, err := artifact.Read(outputPath)
	if err != nil {
		logger.ErrorContext(ctx, "read result artifact", logging.Error(err))
		if _, markErr := o.store.MarkFailed(ctx, jobID, fmt.Sprintf("unreadable result artifact: %v", err)); markErr != nil {
			logger.ErrorContext(ctx, "mark artifact failure", logging.Error(markErr))
		}
		return
	}

	updated, err := o.store.MarkCompleted(ctx, jobID, result.CompletionResult())
	if err != nil {
		logger.ErrorContext(ctx, "mark completed", logging.Error(err))
		return
	}
	if !updated {
		// The job left PROCESSING through some other path; keep whatever
		// terminal state it reached.
		logger.WarnContext(ctx, "job no longer processing at completion")
		return
	}
	if err := o.store.ReplaceTimeSeries(ctx, jobID, result.Points()); err != nil {
		logger.ErrorContext(ctx, "persist time series", logging.Error(err))
	}
	if err := o.notifier.NotifyAnalysisCompleted(ctx, inputPath, result.OverallStatus); err != nil {
		logger.WarnContext(ctx, "completion notification", logging.Error(err))
	}
	logger.InfoContext(ctx, "analysis completed",
		logging.String("overall", result.OverallStatus),
		logging.Int64("frames", result.TotalFrames))
}

// Close stops all completion pollers and waits for them to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	select {
	case <-o.done:
	default:
		close(o.done)
	}
	o.mu.Unlock()
	o.pollers.Wait()
}

// Wait blocks until every in-flight completion poller has finished.
func (o *Orchestrator) Wait() {
	o.pollers.Wait()
}
