package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"votegate/internal/metrics"
)

func TestHealthEndpoint(t *testing.T) {
	api := New(Config{
		Addr:    ":0",
		Version: "test",
	})

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()

	api.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	api := New(Config{
		Addr:         ":0",
		Version:      "1.0.0",
		ListenerAddr: func() string { return "0.0.0.0:8192" },
		Consumers:    []string{"log", "redis"},
		Sites:        []string{"alpha"},
	})

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()

	api.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var resp StatusResponse
	json.NewDecoder(rr.Body).Decode(&resp)

	if resp.Status != "running" {
		t.Errorf("expected status 'running', got %q", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", resp.Version)
	}
	if resp.ListenerAddr != "0.0.0.0:8192" {
		t.Errorf("expected listener addr, got %q", resp.ListenerAddr)
	}
	if len(resp.Consumers) != 2 || resp.Consumers[0] != "log" {
		t.Errorf("unexpected consumers: %v", resp.Consumers)
	}
	if len(resp.Sites) != 1 || resp.Sites[0] != "alpha" {
		t.Errorf("unexpected sites: %v", resp.Sites)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RecordVote("v2", "alpha")

	api := New(Config{
		Addr:    ":0",
		Metrics: m,
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()

	api.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var snapshot metrics.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snapshot); err != nil {
		t.Fatalf("failed to decode metrics: %v", err)
	}
	if snapshot.TotalVotes != 1 {
		t.Errorf("expected 1 vote, got %d", snapshot.TotalVotes)
	}
}

func TestMetricsEndpointUnavailable(t *testing.T) {
	api := New(Config{Addr: ":0"})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()

	api.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
}
