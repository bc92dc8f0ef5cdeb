package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "webapp"

// Metrics holds all Prometheus metrics on a private registry, so several
// hosts (and tests) can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Package metrics
	BuildsTotal *prometheus.CounterVec
	LoadsTotal  *prometheus.CounterVec
	AppsLoaded  prometheus.Gauge
	UpdateCheck *prometheus.CounterVec

	// Bridge metrics
	CommandsDispatched *prometheus.CounterVec
	CommandsCompleted  *prometheus.CounterVec
	CommandsDiscarded  *prometheus.CounterVec
	CommandsPending    prometheus.Gauge

	// Handler metrics
	HandlerCalls    *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON status API
type Snapshot struct {
	AppsLoaded        int64   `json:"apps_loaded"`
	CommandsServed    int64   `json:"commands_served"`
	CommandErrors     int64   `json:"command_errors"`
	PendingCommands   int64   `json:"pending_commands"`
	ActiveConnections int64   `json:"active_connections"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		Registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		BuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Package builds by outcome",
			},
			[]string{"outcome"},
		),
		LoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Package loads by outcome and verification result",
			},
			[]string{"outcome", "verified"},
		),
		AppsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_loaded",
				Help:      "Number of applications currently loaded",
			},
		),
		UpdateCheck: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "update_checks_total",
				Help:      "Update checks by result",
			},
			[]string{"result"},
		),

		CommandsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_commands_dispatched_total",
				Help:      "Commands dispatched by capability",
			},
			[]string{"capability"},
		),
		CommandsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_commands_completed_total",
				Help:      "Awaited commands by outcome (ok, error, timeout, cancelled)",
			},
			[]string{"outcome"},
		),
		CommandsDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_responses_discarded_total",
				Help:      "Responses dropped by reason (stale, malformed)",
			},
			[]string{"reason"},
		),
		CommandsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bridge_commands_pending",
				Help:      "Commands awaiting a response",
			},
		),

		HandlerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_calls_total",
				Help:      "Capability handler invocations",
			},
			[]string{"capability", "command", "status"},
		),
		HandlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Capability handler duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"capability", "command"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordBuild records a package build
func (m *Metrics) RecordBuild(err error) {
	m.BuildsTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordLoad records a package load
func (m *Metrics) RecordLoad(err error, verified bool) {
	v := "false"
	if verified {
		v = "true"
	}
	m.LoadsTotal.WithLabelValues(outcome(err), v).Inc()
}

// SetAppsLoaded sets the number of loaded applications
func (m *Metrics) SetAppsLoaded(count int) {
	m.AppsLoaded.Set(float64(count))
	m.mu.Lock()
	m.snapshot.AppsLoaded = int64(count)
	m.mu.Unlock()
}

// RecordUpdateCheck records an update check result (newer, current, error)
func (m *Metrics) RecordUpdateCheck(result string) {
	m.UpdateCheck.WithLabelValues(result).Inc()
}

// RecordDispatch records a dispatched command
func (m *Metrics) RecordDispatch(capability string) {
	m.CommandsDispatched.WithLabelValues(capability).Inc()
	m.CommandsPending.Inc()
	m.mu.Lock()
	m.snapshot.PendingCommands++
	m.mu.Unlock()
}

// RecordSettled records a pending command leaving the table
func (m *Metrics) RecordSettled(outcome string) {
	m.CommandsCompleted.WithLabelValues(outcome).Inc()
	m.CommandsPending.Dec()
	m.mu.Lock()
	m.snapshot.PendingCommands--
	m.mu.Unlock()
}

// RecordDiscarded records a dropped response
func (m *Metrics) RecordDiscarded(reason string) {
	m.CommandsDiscarded.WithLabelValues(reason).Inc()
}

// RecordHandlerCall records a capability handler invocation
func (m *Metrics) RecordHandlerCall(capability, command, status string, duration time.Duration) {
	m.HandlerCalls.WithLabelValues(capability, command, status).Inc()
	m.HandlerDuration.WithLabelValues(capability, command).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.CommandsServed++
	if status != StatusSuccess {
		m.snapshot.CommandErrors++
	}
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction string) {
	m.WSMessages.WithLabelValues(direction).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
