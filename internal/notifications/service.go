package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"benchcheck/internal/config"
)

const userAgent = "Benchcheck/0.1.0"

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyAnalysisStarted(ctx context.Context, videoPath string) error
	NotifyAnalysisCompleted(ctx context.Context, videoPath, overallStatus string) error
	NotifyAnalysisFailed(ctx context.Context, videoPath string, cause error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyAnalysisStarted(ctx context.Context, videoPath string) error {
	data := payload{
		title:   "Benchcheck - Analysis Started",
		message: fmt.Sprintf("Analyzing %s", filepath.Base(videoPath)),
		tags:    []string{"benchcheck", "analysis", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAnalysisCompleted(ctx context.Context, videoPath, overallStatus string) error {
	overallStatus = strings.TrimSpace(overallStatus)
	data := payload{
		title:    "Benchcheck - Analysis Complete",
		message:  fmt.Sprintf("%s: %s", filepath.Base(videoPath), overallStatus),
		tags:     []string{"benchcheck", "analysis", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAnalysisFailed(ctx context.Context, videoPath string, cause error) error {
	message := fmt.Sprintf("Analysis failed: %s", filepath.Base(videoPath))
	if cause != nil {
		message = fmt.Sprintf("%s\n%s", message, strings.TrimSpace(cause.Error()))
	}
	data := payload{
		title:    "Benchcheck - Error",
		message:  message,
		tags:     []string{"benchcheck", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Benchcheck - Test",
		message:  "Notification system test",
		tags:     []string{"benchcheck", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyAnalysisStarted(context.Context, string) error           { return nil }
func (noopService) NotifyAnalysisCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyAnalysisFailed(context.Context, string, error) error     { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
