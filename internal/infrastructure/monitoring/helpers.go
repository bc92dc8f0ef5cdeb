package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler status labels
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Settle outcomes for bridge commands
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "send_failed"
)

// Update check results
const (
	UpdateNewer   = "newer"
	UpdateCurrent = "current"
	UpdateError   = "error"
)

// Discard reasons for responses the bridge drops
const (
	DiscardStale     = "stale"
	DiscardMalformed = "malformed"
	DiscardUnclaimed = "unclaimed"
)

// GetSnapshot returns current values for the JSON status API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

// Handler exposes the private registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
