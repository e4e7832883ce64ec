package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"benchcheck/internal/config"
	"benchcheck/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyAnalysisStarted(context.Background(), "/videos/bench.mp4"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop test to return nil, got %v", err)
	}
}

func TestNtfyServicePublishes(t *testing.T) {
	type captured struct {
		title    string
		tags     string
		priority string
		body     string
	}
	var requests []captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyAnalysisStarted(ctx, "/videos/bench.mp4"); err != nil {
		t.Fatalf("NotifyAnalysisStarted: %v", err)
	}
	if err := svc.NotifyAnalysisCompleted(ctx, "/videos/bench.mp4", "GOOD REP"); err != nil {
		t.Fatalf("NotifyAnalysisCompleted: %v", err)
	}
	if err := svc.NotifyAnalysisFailed(ctx, "/videos/bench.mp4", errors.New("encode failed")); err != nil {
		t.Fatalf("NotifyAnalysisFailed: %v", err)
	}

	if len(requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(requests))
	}
	if requests[0].title != "Benchcheck - Analysis Started" || !strings.Contains(requests[0].body, "bench.mp4") {
		t.Fatalf("unexpected started notification: %+v", requests[0])
	}
	if !strings.Contains(requests[1].body, "GOOD REP") || requests[1].priority != "high" {
		t.Fatalf("unexpected completed notification: %+v", requests[1])
	}
	if !strings.Contains(requests[2].body, "encode failed") || requests[2].tags != "benchcheck,error,alert" {
		t.Fatalf("unexpected failed notification: %+v", requests[2])
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from 403 response")
	}
}
