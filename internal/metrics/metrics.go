// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisdom",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route template and status code.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wisdom",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route template.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	toggleActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisdom",
			Name:      "toggle_actions_total",
			Help:      "Bookmark and reaction toggles by resulting action.",
		},
		[]string{"kind", "action"},
	)

	outboxProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisdom",
			Name:      "outbox_processed_total",
			Help:      "Search outbox rows handled by result (done, failed).",
		},
		[]string{"result"},
	)

	reindexRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisdom",
			Name:      "reindex_runs_total",
			Help:      "Scheduled full reindex runs by result.",
		},
		[]string{"result"},
	)
)

func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveToggle counts kind ("bookmark", "reaction") by action ("added", ...).
func ObserveToggle(kind, action string) {
	toggleActionsTotal.WithLabelValues(kind, action).Inc()
}

func ObserveOutbox(result string) {
	outboxProcessedTotal.WithLabelValues(result).Inc()
}

func ObserveReindex(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	reindexRunsTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
