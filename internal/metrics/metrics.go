// Package metrics holds the Prometheus collectors exported on /metrics.
//
// Collectors are package-level and registered on the default registry via
// promauto, so any package can record into them without wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// UpstreamRequests counts calls to the remote book service by data
	// access operation ("listUsers", "getSimilar", ...) and outcome.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_upstream_requests_total",
			Help: "Requests issued to the remote book service",
		},
		[]string{"operation", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookshelf_upstream_request_duration_seconds",
			Help:    "Latency of requests to the remote book service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// UserFailures counts failures surfaced to the user as a notice, by the
	// top-level operation that caught them ("loadUsers", "showBookDetails", ...).
	UserFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_user_visible_failures_total",
			Help: "Failures reported to the user as a blocking notice",
		},
		[]string{"operation"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_http_requests_total",
			Help: "HTTP requests served, by route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookshelf_http_request_duration_seconds",
			Help:    "Latency of HTTP requests served",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookshelf_sessions_created_total",
			Help: "Browser sessions bootstrapped",
		},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookshelf_sessions_swept_total",
			Help: "Idle browser sessions removed by the janitor",
		},
	)
)
