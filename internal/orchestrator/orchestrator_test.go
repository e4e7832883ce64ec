package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"benchcheck/internal/analysis"
	"benchcheck/internal/artifact"
	"benchcheck/internal/config"
	"benchcheck/internal/jobs"
	"benchcheck/internal/orchestrator"
	"benchcheck/internal/services"
	"benchcheck/internal/testsupport"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      int
	err        error
	onDispatch func(inputPath, outputPath string)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, inputPath, outputPath string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.onDispatch != nil {
		f.onDispatch(inputPath, outputPath)
	}
	return nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func goodArtifact() artifact.Result {
	hip := 412.0
	return artifact.Result{
		OverallStatus:    analysis.StatusGoodRep,
		HipLiftStatus:    analysis.StatusOK,
		ShallowRepStatus: analysis.StatusOK,
		TotalFrames:      22,
		FPS:              30,
		VideoDuration:    0.733,
		TimeSeriesData: []artifact.TimeSeriesEntry{
			{Frame: 0, Timestamp: 0, HipY: &hip, BenchDetected: true, BarDetected: true},
		},
	}
}

func publishOutputs(t *testing.T, outputPath string) {
	t.Helper()
	testsupport.WriteFile(t, outputPath, 64)
	if err := artifact.Write(outputPath, goodArtifact()); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

func newOrchestrator(t *testing.T, cfg *config.Config, store *jobs.Store, dispatcher *fakeDispatcher) *orchestrator.Orchestrator {
	t.Helper()
	o := orchestrator.New(cfg, store, dispatcher, nil, nil, orchestrator.WithPollInterval(2*time.Millisecond))
	t.Cleanup(o.Close)
	return o
}

func TestOutputPath(t *testing.T) {
	got := orchestrator.OutputPath("/processed", "/videos/bench press 3.mp4")
	if got != "/processed/bench press 3_processed.mp4" {
		t.Fatalf("unexpected output path %q", got)
	}
}

func TestStartAnalysisCompletesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Orchestrator.MaxPolls = 50
	store := testsupport.MustOpenStore(t, cfg)
	dispatcher := &fakeDispatcher{onDispatch: func(inputPath, outputPath string) {
		publishOutputs(t, outputPath)
	}}
	o := newOrchestrator(t, cfg, store, dispatcher)

	job := testsupport.NewJob(t, store, "/videos/bench.mp4")
	ack, err := o.StartAnalysis(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if ack.Message != "processing_started" || ack.Status != jobs.StatusProcessing {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	o.Wait()

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.OverallStatus != analysis.StatusGoodRep || final.TotalFrames != 22 {
		t.Fatalf("result fields not persisted: %+v", final)
	}

	points, err := store.TimeSeries(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TimeSeries: %v", err)
	}
	if len(points) != 1 || points[0].HipY == nil {
		t.Fatalf("time series not persisted: %+v", points)
	}
}

func TestVideoWithoutArtifactKeepsWaiting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Orchestrator.MaxPolls = 200
	store := testsupport.MustOpenStore(t, cfg)

	dispatcher := &fakeDispatcher{onDispatch: func(inputPath, outputPath string) {
		// The video appears right away; the artifact trails it, the way a
		// real session renames the video before writing the sidecar.
		testsupport.WriteFile(t, outputPath, 64)
		time.AfterFunc(30*time.Millisecond, func() {
			_ = artifact.Write(outputPath, goodArtifact())
		})
	}}
	o := newOrchestrator(t, cfg, store, dispatcher)

	job := testsupport.NewJob(t, store, "/videos/bench.mp4")
	if _, err := o.StartAnalysis(context.Background(), job.ID); err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}

	// Immediately after dispatch only the video exists; the job must still
	// be in flight, not completed off the video alone.
	mid, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if mid.Status != jobs.StatusProcessing {
		t.Fatalf("expected PROCESSING while artifact pending, got %s", mid.Status)
	}

	o.Wait()

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED after late artifact, got %s (%s)", final.Status, final.ErrorMessage)
	}
}

func TestPollBudgetExhaustionFailsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Orchestrator.MaxPolls = 5
	store := testsupport.MustOpenStore(t, cfg)
	dispatcher := &fakeDispatcher{} // session never produces anything
	o := newOrchestrator(t, cfg, store, dispatcher)

	job := testsupport.NewJob(t, store, "/videos/bench.mp4")
	if _, err := o.StartAnalysis(context.Background(), job.ID); err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	o.Wait()

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusFailed {
		t.Fatalf("expected FAILED on timeout, got %s", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Fatal("expected a timeout error message")
	}
	if final.OverallStatus != "" || final.TotalFrames != 0 {
		t.Fatalf("failed job must expose no result fields: %+v", final)
	}
}

func TestDispatchFailureFailsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dispatcher := &fakeDispatcher{err: services.Wrap(services.ErrDispatch, "dispatcher", "dispatch", "analyzer unreachable", nil)}
	o := newOrchestrator(t, cfg, store, dispatcher)

	job := testsupport.NewJob(t, store, "/videos/bench.mp4")
	_, err := o.StartAnalysis(context.Background(), job.ID)
	if !errors.Is(err, services.ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}

	// No poller was started; the job is already terminal.
	o.Wait()
	final, getErr := store.GetByID(context.Background(), job.ID)
	if getErr != nil {
		t.Fatalf("GetByID: %v", getErr)
	}
	if final.Status != jobs.StatusFailed {
		t.Fatalf("expected FAILED after dispatch failure, got %s", final.Status)
	}
}

func TestStartAnalysisIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Orchestrator.MaxPolls = 2
	store := testsupport.MustOpenStore(t, cfg)
	dispatcher := &fakeDispatcher{}
	o := newOrchestrator(t, cfg, store, dispatcher)

	job := testsupport.NewJob(t, store, "/videos/bench.mp4")
	if _, err := o.StartAnalysis(context.Background(), job.ID); err != nil {
		t.Fatalf("first StartAnalysis: %v", err)
	}

	ack, err := o.StartAnalysis(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("second StartAnalysis: %v", err)
	}
	if ack.Message != "already handled" {
		t.Fatalf("expected no-op ack, got %+v", ack)
	}
	if dispatcher.callCount() != 1 {
		t.Fatalf("expected a single dispatch, got %d", dispatcher.callCount())
	}
	o.Wait()
}

func TestStartAnalysisUnknownJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	o := newOrchestrator(t, cfg, store, &fakeDispatcher{})

	if _, err := o.StartAnalysis(context.Background(), 424242); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerDrainsPendingJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Orchestrator.MaxPolls = 50
	store := testsupport.MustOpenStore(t, cfg)
	dispatcher := &fakeDispatcher{onDispatch: func(inputPath, outputPath string) {
		publishOutputs(t, outputPath)
	}}
	o := newOrchestrator(t, cfg, store, dispatcher)

	first := testsupport.NewJob(t, store, "/videos/a.mp4")
	second := testsupport.NewJob(t, store, "/videos/b.mp4")

	manager := orchestrator.NewManager(cfg, store, o, nil)
	manager.Start(context.Background())
	t.Cleanup(manager.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if dispatcher.callCount() >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("manager did not dispatch both jobs, calls=%d", dispatcher.callCount())
		}
		time.Sleep(time.Millisecond)
	}
	manager.Stop()
	o.Wait()

	for _, id := range []int64{first.ID, second.ID} {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job.Status != jobs.StatusCompleted {
			t.Fatalf("job %d: expected COMPLETED, got %s (%s)", id, job.Status, job.ErrorMessage)
		}
	}
}
