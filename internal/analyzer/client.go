// Package analyzer is the HTTP client for a remote analysis service. It
// implements the same fire-and-forget dispatch contract as the local
// detached-process dispatcher.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"benchcheck/internal/services"
)

const defaultTimeout = 10 * time.Second

// Client triggers analysis on a remote analyzer over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithTimeout bounds the dispatch round trip. Non-positive values keep
// the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

// New builds a client for the analyzer at baseURL.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type analyzeRequest struct {
	InputVideoPath  string `json:"input_video_path"`
	OutputVideoPath string `json:"output_video_path"`
}

type analyzeResponse struct {
	Status string `json:"status"`
}

// Dispatch asks the analyzer to start processing and returns once the
// request is acknowledged. The analyzer answers 202 immediately; actual
// completion is observed through the output artifacts, never this call.
func (c *Client) Dispatch(ctx context.Context, inputPath, outputPath string) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch", "analyzer URL not configured", nil)
	}
	if strings.TrimSpace(inputPath) == "" || strings.TrimSpace(outputPath) == "" {
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch", "input and output paths required", nil)
	}

	payload, err := json.Marshal(analyzeRequest{InputVideoPath: inputPath, OutputVideoPath: outputPath})
	if err != nil {
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch", "analyzer unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var ack analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch", "decode acknowledgment", err)
	}
	if ack.Status != "processing_started" {
		return services.Wrap(services.ErrDispatch, "analyzer", "dispatch",
			fmt.Sprintf("unexpected acknowledgment %q", ack.Status), nil)
	}
	return nil
}
