// Package metrics provides Prometheus instrumentation for the support chat
// subsystem. It exposes gauges for session backlog, counters for message and
// assignment throughput, and histograms for assignment latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WaitingSessions tracks the current number of waiting sessions.
	WaitingSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_waiting_sessions",
		Help: "Current number of sessions waiting for an agent",
	})

	// ActiveSessions tracks the current number of active sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// MessagesTotal counts messages appended, labeled by sender type.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_messages_total",
		Help: "Total number of chat messages appended",
	}, []string{"sender"}) // sender = "customer", "agent"

	// AssignmentsTotal counts assignment attempts by outcome.
	AssignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_assignments_total",
		Help: "Total number of session assignment attempts",
	}, []string{"outcome"}) // outcome = "assigned", "conflict", "capacity", "error"

	// AssignmentDuration records AssignSession latency in seconds.
	AssignmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "supportchat_assignment_duration_seconds",
		Help:    "AssignSession latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// SessionsStartedTotal counts sessions created, labeled by outcome.
	SessionsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_sessions_started_total",
		Help: "Total number of session start attempts",
	}, []string{"outcome"}) // outcome = "created", "denied", "invalid", "error"
)

func init() {
	prometheus.MustRegister(
		WaitingSessions,
		ActiveSessions,
		MessagesTotal,
		AssignmentsTotal,
		AssignmentDuration,
		SessionsStartedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
