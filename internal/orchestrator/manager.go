package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"benchcheck/internal/config"
	"benchcheck/internal/jobs"
	"benchcheck/internal/logging"
	"benchcheck/internal/services"
)

// Manager drains the PENDING queue, starting analysis for each job in
// creation order. Jobs share no state, so each one proceeds independently
// once started.
type Manager struct {
	orchestrator *Orchestrator
	store        *jobs.Store
	logger       *slog.Logger
	interval     time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewManager builds the pending-job manager.
func NewManager(cfg *config.Config, store *jobs.Store, orchestrator *Orchestrator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Orchestrator.QueuePollSeconds) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Manager{
		orchestrator: orchestrator,
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "manager")),
		interval:     interval,
	}
}

// Start launches the queue loop. It returns immediately.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})

	go m.run(ctx)
}

// Stop halts the queue loop and waits for it to exit. In-flight completion
// pollers are owned by the orchestrator and are not touched here.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stopped := m.stopped
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "queue manager started", logging.Duration("interval", m.interval))
	for {
		m.drainPending(ctx)
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "queue manager stopped")
			return
		case <-ticker.C:
		}
	}
}

// drainPending starts every job currently waiting. StartAnalysis is
// idempotent, so racing with an API-triggered start is harmless.
func (m *Manager) drainPending(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := m.store.NextPending(ctx)
		if err != nil {
			m.logger.ErrorContext(ctx, "scan pending jobs", logging.Error(err))
			return
		}
		if job == nil {
			return
		}
		if _, err := m.orchestrator.StartAnalysis(ctx, job.ID); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				continue
			}
			m.logger.ErrorContext(ctx, "start analysis",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(err))
			// Dispatch failures mark the job FAILED; anything else waits
			// for the next tick rather than spinning on the same job.
			return
		}
	}
}
