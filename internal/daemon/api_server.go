package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"benchcheck/internal/artifact"
	"benchcheck/internal/config"
	"benchcheck/internal/fileutil"
	"benchcheck/internal/jobs"
	"benchcheck/internal/logging"
	"benchcheck/internal/services"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/jobs", srv.requireAuth(srv.handleJobs))
	mux.HandleFunc("/api/jobs/", srv.requireAuth(srv.handleJobItem))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.InfoContext(ctx, "api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			header := r.Header.Get("Authorization")
			if header != "Bearer "+s.token {
				writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next(w, r)
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.daemon.running.Load(),
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.createJob(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := jobs.ParseStatus(part)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			statuses = append(statuses, status)
		}
	}
	list, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]jobView, 0, len(list))
	for _, job := range list {
		views = append(views, newJobView(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *apiServer) createJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InputPath string `json:"input_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inputPath := strings.TrimSpace(req.InputPath)
	if inputPath == "" {
		writeError(w, http.StatusBadRequest, "input_path required")
		return
	}
	if !fileutil.Exists(inputPath) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("input video %s not found", inputPath))
		return
	}

	job, err := s.daemon.store.NewJob(r.Context(), inputPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, newJobView(job))
}

func (s *apiServer) handleJobItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.showJob(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteJob(w, r, id)
	case action == "analyze" && r.Method == http.MethodPost:
		s.startAnalysis(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown job operation")
	}
}

func (s *apiServer) showJob(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

// deleteJob removes the job record along with the input video, the annotated
// output, and its sidecar artifact.
func (s *apiServer) deleteJob(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
		return
	}

	removed, err := s.daemon.store.Remove(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if removed {
		removeJobFiles(job, s.logger)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": removed})
}

func (s *apiServer) startAnalysis(w http.ResponseWriter, r *http.Request, id int64) {
	ack, err := s.daemon.orchestrator.StartAnalysis(r.Context(), id)
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
		return
	case errors.Is(err, services.ErrDispatch):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  ack.JobID,
		"status":  ack.Message,
		"message": fmt.Sprintf("job %d is %s", ack.JobID, ack.Status),
	})
}

func removeJobFiles(job *jobs.Job, logger *slog.Logger) {
	paths := []string{job.InputPath}
	if job.OutputPath != "" {
		paths = append(paths, job.OutputPath, artifact.SidecarPath(job.OutputPath))
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove job file", logging.String("path", path), logging.Error(err))
		}
	}
}

type jobView struct {
	ID                 int64   `json:"id"`
	Status             string  `json:"status"`
	InputPath          string  `json:"input_path"`
	OutputPath         string  `json:"output_path,omitempty"`
	OverallStatus      string  `json:"overall_status,omitempty"`
	HipLiftDetected    *bool   `json:"hip_lift_detected,omitempty"`
	HipLiftStatus      string  `json:"hip_lift_status,omitempty"`
	ShallowRepDetected *bool   `json:"shallow_rep_detected,omitempty"`
	ShallowRepStatus   string  `json:"shallow_rep_status,omitempty"`
	TotalFrames        int64   `json:"total_frames,omitempty"`
	FPS                float64 `json:"fps,omitempty"`
	DurationSeconds    float64 `json:"duration_seconds,omitempty"`
	ErrorMessage       string  `json:"error_message,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

func newJobView(job *jobs.Job) jobView {
	view := jobView{
		ID:               job.ID,
		Status:           string(job.Status),
		InputPath:        job.InputPath,
		OutputPath:       job.OutputPath,
		OverallStatus:    job.OverallStatus,
		HipLiftStatus:    job.HipLiftStatus,
		ShallowRepStatus: job.ShallowRepStatus,
		TotalFrames:      job.TotalFrames,
		FPS:              job.FPS,
		DurationSeconds:  job.DurationSeconds,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if job.Status == jobs.StatusCompleted {
		hip := job.HipLiftDetected
		shallow := job.ShallowRepDetected
		view.HipLiftDetected = &hip
		view.ShallowRepDetected = &shallow
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
