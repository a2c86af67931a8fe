// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dyad_sessions_created_total",
		Help: "Sessions created with both participant tokens issued",
	})

	// ProgressSaves counts save-progress calls by outcome tag ("ok" or an error code).
	ProgressSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyad_progress_saves_total",
		Help: "Save-progress calls by outcome",
	}, []string{"outcome"})

	// Completions counts complete-session calls by outcome tag.
	Completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyad_completions_total",
		Help: "Complete-session calls by outcome",
	}, []string{"outcome"})

	// SessionStatus counts status values written by the aggregator.
	SessionStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyad_session_status_total",
		Help: "Session statuses computed after participant completion",
	}, []string{"status"})

	// SecondaryFailures counts failures that were logged instead of returned.
	SecondaryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyad_secondary_failures_total",
		Help: "Non-fatal failures after a committed completion",
	}, []string{"kind"})

	ReportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyad_report_runs_total",
		Help: "Report run ensure attempts by result",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyad_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dyad_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"route"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
