// Package admin exposes a small HTTP API for operators. It is meant to be
// bound to loopback; it carries no authentication of its own.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

// API provides administrative endpoints
type API struct {
	addr         string
	server       *http.Server
	metrics      MetricsSource
	listenerAddr func() string
	consumers    []string
	sites        []string
	startTime    time.Time
	version      string
}

// MetricsSource serves the metrics snapshot; *metrics.Metrics satisfies it.
type MetricsSource interface {
	Handler() http.HandlerFunc
}

// Config configures the Admin API
type Config struct {
	Addr    string
	Metrics MetricsSource
	Version string
	// ListenerAddr reports the vote listener's bound address
	ListenerAddr func() string
	// Consumers are the registered consumer names, in order
	Consumers []string
	// Sites are the registered site identifiers (never their tokens)
	Sites []string
}

// New creates a new Admin API
func New(cfg Config) *API {
	api := &API{
		addr:         cfg.Addr,
		metrics:      cfg.Metrics,
		listenerAddr: cfg.ListenerAddr,
		consumers:    cfg.Consumers,
		sites:        cfg.Sites,
		startTime:    time.Now(),
		version:      cfg.Version,
	}

	r := chi.NewRouter()
	r.Get("/health", api.handleHealth)
	r.Get("/status", api.handleStatus)
	r.Get("/metrics", api.handleMetrics)

	api.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return api
}

// Start starts the Admin API server
func (a *API) Start() error {
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't crash
		}
	}()
	return nil
}

// Stop stops the Admin API server
func (a *API) Stop(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// StatusResponse represents the status endpoint response
type StatusResponse struct {
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	Uptime       string   `json:"uptime"`
	GoVersion    string   `json:"go_version"`
	Goroutines   int      `json:"goroutines"`
	ListenerAddr string   `json:"listener_addr,omitempty"`
	Consumers    []string `json:"consumers"`
	Sites        []string `json:"sites"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:     "running",
		Version:    a.version,
		Uptime:     time.Since(a.startTime).Round(time.Second).String(),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		Consumers:  a.consumers,
		Sites:      a.sites,
	}
	if a.listenerAddr != nil {
		resp.ListenerAddr = a.listenerAddr()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.metrics == nil {
		http.Error(w, "Metrics not available", http.StatusServiceUnavailable)
		return
	}
	a.metrics.Handler()(w, r)
}
