package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"benchcheck/internal/config"
	"benchcheck/internal/jobs"
	"benchcheck/internal/logging"
	"benchcheck/internal/orchestrator"
)

// Daemon ties the job store, queue manager, and HTTP API into a single
// lifecycle with flock-based locking so only one instance runs per host.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *jobs.Store
	orchestrator *orchestrator.Orchestrator
	manager      *orchestrator.Manager
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	JobDBPath    string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, orch *orchestrator.Orchestrator, manager *orchestrator.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "benchcheckd.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:        store,
		orchestrator: orch,
		manager:      manager,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock and launches the queue manager and API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another benchcheck daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.manager.Start(runCtx)
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.manager.Stop()
			cancel()
			d.cancel = nil
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.InfoContext(ctx, "benchcheck daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the instance lock. In-flight
// completion pollers are stopped; their jobs stay PROCESSING until retried
// or cleared by hand.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	d.orchestrator.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("benchcheck daemon stopped")
}

// Close stops the daemon and releases its store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports the daemon's current runtime state.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.api != nil {
		status.APIAddress = d.api.address()
	}
	return status
}
