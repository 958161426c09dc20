// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SessionsStarted tracks guidance sessions started per category.
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_sessions_started_total",
			Help: "Total guidance sessions started",
		},
		[]string{"category"},
	)

	// SessionsFinished tracks sessions reaching a terminal or paused status.
	SessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_sessions_status_total",
			Help: "Session status changes by category",
		},
		[]string{"category", "status"},
	)

	// StartConflicts tracks start attempts rejected because a live session exists.
	StartConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_session_start_conflicts_total",
			Help: "Start attempts rejected by the one-live-session rule",
		},
		[]string{"category"},
	)

	// Transitions tracks node transitions by outcome.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_transitions_total",
			Help: "Node transitions by outcome",
		},
		[]string{"category", "outcome"},
	)

	// TransitionDuration tracks the time spent applying one transition.
	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flow_transition_duration_seconds",
			Help:    "Time to validate, route and persist one transition",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// EscalationsTotal tracks escalations created.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Escalations created by type and routing target",
		},
		[]string{"escalation_type", "target"},
	)

	// EscalationsResolved tracks escalation status changes made by admins.
	EscalationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_status_changes_total",
			Help: "Escalation status changes made by admins",
		},
		[]string{"status"},
	)

	// OutboxPublished tracks outbox relay publish attempts.
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_total",
			Help: "Outbox messages published by kind and result",
		},
		[]string{"kind", "result"},
	)

	// NATSConnected is 1 while the notification relay holds a NATS connection.
	NATSConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_connected",
			Help: "Whether the NATS connection is up",
		},
	)

	// LLMDrafts tracks reply drafts generated for operators.
	LLMDrafts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_drafts_total",
			Help: "Reply drafts by source and status",
		},
		[]string{"source", "status"},
	)

	// LLMDraftDuration tracks LLM latency for reply drafts.
	LLMDraftDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_draft_duration_seconds",
			Help:    "LLM reply draft latency",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"model"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTransition records a transition outcome and its duration.
func RecordTransition(category, operation, outcome string, duration float64) {
	Transitions.WithLabelValues(category, outcome).Inc()
	TransitionDuration.WithLabelValues(operation).Observe(duration)
}

// RecordDraft records a reply draft.
func RecordDraft(source, model, status string, duration float64) {
	LLMDrafts.WithLabelValues(source, status).Inc()
	if model != "" {
		LLMDraftDuration.WithLabelValues(model).Observe(duration)
	}
}
