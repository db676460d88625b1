package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus collectors.
//
// Collectors are registered on a dedicated registry rather than the global
// default, so tests and multiple relays in one process do not collide.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.MessageReceived()
//	metrics.RecordAgentRequest("success", time.Since(start))
type Metrics struct {
	// Registry is the registry all relay collectors are registered on.
	Registry *prometheus.Registry

	// MessageCounter tracks chat messages by direction.
	// Labels: direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// AgentRequestCounter counts remote agent calls.
	// Labels: status (success|agent_error|transport_error|config_error)
	AgentRequestCounter *prometheus.CounterVec

	// AgentRequestDuration measures remote agent latency in seconds.
	// Buckets: 0.5s .. 600s
	AgentRequestDuration prometheus.Histogram

	// ErrorCounter tracks errors by component and type.
	// Labels: component (agent|dispatch|discord), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is the number of conversations holding a continuation token.
	ActiveSessions prometheus.Gauge

	// ChunksPerReply records how many chat messages each answer was split into.
	ChunksPerReply prometheus.Histogram
}

// NewMetrics creates all relay collectors on a fresh registry. The registry
// also carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_total",
				Help: "Total number of chat messages handled by direction",
			},
			[]string{"direction"},
		),

		AgentRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_agent_requests_total",
				Help: "Total number of remote agent requests by outcome",
			},
			[]string{"status"},
		),

		AgentRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_agent_request_duration_seconds",
				Help:    "Duration of remote agent requests in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_active_sessions",
				Help: "Number of conversations holding an agent continuation token",
			},
		),

		ChunksPerReply: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_chunks_per_reply",
				Help:    "Number of chat messages an answer was split into",
				Buckets: []float64{1, 2, 3, 5, 8, 13},
			},
		),
	}
}

// MessageReceived increments the inbound message counter.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.MessageCounter.WithLabelValues("inbound").Inc()
}

// MessageSent increments the outbound message counter.
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.MessageCounter.WithLabelValues("outbound").Inc()
}

// RecordAgentRequest records the outcome and latency of one agent call.
//
// Example:
//
//	start := time.Now()
//	// ... call agent ...
//	metrics.RecordAgentRequest("success", time.Since(start))
func (m *Metrics) RecordAgentRequest(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AgentRequestCounter.WithLabelValues(status).Inc()
	m.AgentRequestDuration.Observe(duration.Seconds())
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("discord", "send_failed")
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// ObserveChunks records how many messages one reply used.
func (m *Metrics) ObserveChunks(n int) {
	if m == nil {
		return
	}
	m.ChunksPerReply.Observe(float64(n))
}
