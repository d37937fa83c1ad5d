package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by channel (redirect|exchange|validate) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifolio_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"channel", "result"},
	)

	// RoleChecks counts role gate evaluations (allow|deny).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifolio_role_checks_total",
			Help: "Total number of role checks",
		},
		[]string{"result"},
	)

	// WorkflowTransitions counts request state changes per workflow.
	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifolio_workflow_transitions_total",
			Help: "Request/approval state transitions",
		},
		[]string{"workflow", "status"},
	)

	// ActiveSessions tracks sessions issued and not yet revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verifolio_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// EventSubscribers tracks open invalidation websocket connections.
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verifolio_event_subscribers",
			Help: "Open invalidation event connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verifolio_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
