package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"benchcheck/internal/services"
)

func TestDispatchSendsAnalyzeRequest(t *testing.T) {
	var received analyzeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing_started"})
	}))
	defer server.Close()

	client := New(server.URL)
	if err := client.Dispatch(context.Background(), "/videos/bench.mp4", "/processed/bench_processed.mp4"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if received.InputVideoPath != "/videos/bench.mp4" || received.OutputVideoPath != "/processed/bench_processed.mp4" {
		t.Fatalf("unexpected request body: %+v", received)
	}
}

func TestNewTimeoutOption(t *testing.T) {
	if got := New("http://localhost:9").httpc.Timeout; got != defaultTimeout {
		t.Fatalf("default timeout: got %v, want %v", got, defaultTimeout)
	}
	if got := New("http://localhost:9", WithTimeout(30*time.Second)).httpc.Timeout; got != 30*time.Second {
		t.Fatalf("timeout override not applied: %v", got)
	}
	if got := New("http://localhost:9", WithTimeout(0)).httpc.Timeout; got != defaultTimeout {
		t.Fatalf("zero timeout must keep default, got %v", got)
	}
}

func TestDispatchRejectsNonAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := New(server.URL).Dispatch(context.Background(), "/in.mp4", "/out.mp4")
	if !errors.Is(err, services.ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
}

func TestDispatchRejectsWrongAck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	}))
	defer server.Close()

	err := New(server.URL).Dispatch(context.Background(), "/in.mp4", "/out.mp4")
	if !errors.Is(err, services.ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
}

func TestDispatchUnreachableAnalyzer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	err := New(server.URL).Dispatch(context.Background(), "/in.mp4", "/out.mp4")
	if !errors.Is(err, services.ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
}

func TestDispatchRequiresConfiguration(t *testing.T) {
	if err := New("").Dispatch(context.Background(), "/in.mp4", "/out.mp4"); !errors.Is(err, services.ErrDispatch) {
		t.Fatal("expected ErrDispatch for missing URL")
	}
	if err := New("http://localhost:9").Dispatch(context.Background(), "", "/out.mp4"); !errors.Is(err, services.ErrDispatch) {
		t.Fatal("expected ErrDispatch for missing input")
	}
}
