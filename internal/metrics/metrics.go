// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediai_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediai_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediai_chat_messages_total",
			Help: "Chat messages appended to session transcripts",
		},
		[]string{"author", "kind"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediai_chat_active_sessions",
			Help: "Chat sessions currently held in memory",
		},
	)

	// Quote metrics
	QuotesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediai_quotes_generated_total",
			Help: "Quotes assembled from submitted forms",
		},
		[]string{"coverage_class"},
	)

	QuotesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediai_quotes_saved_total",
			Help: "Quotes saved to the broker dashboard",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediai_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	SQLiteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediai_sqlite_latency_seconds",
			Help:    "SQLite query latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
	)
)
