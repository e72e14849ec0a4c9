// Package metrics tracks in-process counters for the vote listener.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Metrics collects counters across all connections
type Metrics struct {
	mu          sync.RWMutex
	startTime   time.Time
	connections int64
	votes       map[string]int64 // by protocol version
	failures    map[string]int64 // by error class
	siteVotes   map[string]int64 // by site identifier
	sourceIPs   map[string]int64 // connections per source IP
}

// Snapshot is a point-in-time copy of all counters
type Snapshot struct {
	UptimeSeconds   float64          `json:"uptime_seconds"`
	Connections     int64            `json:"connections"`
	TotalVotes      int64            `json:"total_votes"`
	VotesByProtocol map[string]int64 `json:"votes_by_protocol"`
	Failures        map[string]int64 `json:"failures"`
	SiteVotes       map[string]int64 `json:"site_votes"`
	UniqueSourceIPs int              `json:"unique_source_ips"`
}

// New creates a metrics collector
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		votes:     make(map[string]int64),
		failures:  make(map[string]int64),
		siteVotes: make(map[string]int64),
		sourceIPs: make(map[string]int64),
	}
}

// RecordConnection counts an accepted connection from the given source IP
func (m *Metrics) RecordConnection(sourceIP string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections++
	m.sourceIPs[sourceIP]++
}

// RecordVote counts a successfully decoded vote. Site is the authenticated
// site identifier for structured votes and empty for legacy votes, which
// carry none.
func (m *Metrics) RecordVote(protocol, site string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[protocol]++
	if site != "" {
		m.siteVotes[site]++
	}
}

// RecordFailure counts a rejected connection by error class
func (m *Metrics) RecordFailure(class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[class]++
}

// GetSnapshot returns a copy of all counters
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		UptimeSeconds:   time.Since(m.startTime).Seconds(),
		Connections:     m.connections,
		VotesByProtocol: make(map[string]int64, len(m.votes)),
		Failures:        make(map[string]int64, len(m.failures)),
		SiteVotes:       make(map[string]int64, len(m.siteVotes)),
		UniqueSourceIPs: len(m.sourceIPs),
	}
	for k, v := range m.votes {
		s.VotesByProtocol[k] = v
		s.TotalVotes += v
	}
	for k, v := range m.failures {
		s.Failures[k] = v
	}
	for k, v := range m.siteVotes {
		s.SiteVotes[k] = v
	}
	return s
}

// Reset clears all counters
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTime = time.Now()
	m.connections = 0
	m.votes = make(map[string]int64)
	m.failures = make(map[string]int64)
	m.siteVotes = make(map[string]int64)
	m.sourceIPs = make(map[string]int64)
}

// Handler returns an HTTP handler serving the snapshot as JSON
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.GetSnapshot())
	}
}
