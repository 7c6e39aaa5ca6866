package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Remote backend metrics. outcome is ok, network, validation, auth or not_found.
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Latency of calls to the remote auth and data services",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "outcome"},
	)

	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Total number of calls to the remote auth and data services",
		},
		[]string{"operation", "outcome"},
	)

	BackendRecordsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_records_rejected_total",
			Help: "Listings dropped because they failed schema validation",
		},
	)

	// Session metrics
	AuthEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Auth-state transitions emitted by the session provider",
		},
		[]string{"type"},
	)

	SessionSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_subscribers_active",
			Help: "Number of live auth-state subscriptions",
		},
	)

	SessionsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_cleaned_total",
			Help: "Expired sessions removed by the cleanup task",
		},
	)

	WriteActionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "write_actions_rejected_total",
			Help: "Write actions refused before reaching the backend",
		},
		[]string{"action", "reason"},
	)
)
