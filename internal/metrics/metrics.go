package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "schema_designer"

var (
	// savesTotal counts autosave attempts by result
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "autosave",
		Name:      "saves_total",
		Help:      "Total autosave attempts by result",
	}, []string{"result"})

	// saveDuration tracks store write latency
	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "autosave",
		Name:      "save_duration_seconds",
		Help:      "Schema write duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	// skippedTotal counts timer fires dropped by reason
	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "autosave",
		Name:      "skipped_total",
		Help:      "Autosave triggers skipped by reason",
	}, []string{"reason"})

	// actionsTotal counts graph actions applied by type and result
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "designer",
		Name:      "actions_total",
		Help:      "Graph actions applied by type and result",
	}, []string{"action", "result"})

	// openSessions tracks designer sessions held in memory
	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "designer",
		Name:      "open_sessions",
		Help:      "Designer sessions currently open",
	})

	// exportsTotal counts exports by format
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exporter",
		Name:      "exports_total",
		Help:      "Schema exports by format",
	}, []string{"format"})

	// httpRequests counts API requests by route and status code
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by method, route and status",
	}, []string{"method", "route", "status"})

	// httpDuration tracks API latency by route
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveSave records the outcome of a schema write
func ObserveSave(err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	savesTotal.WithLabelValues(result).Inc()
	saveDuration.Observe(elapsed.Seconds())
}

// SaveSkipped records a trigger that did not result in a write
func SaveSkipped(reason string) {
	skippedTotal.WithLabelValues(reason).Inc()
}

// ActionApplied records a dispatched graph action
func ActionApplied(action string, err error) {
	result := "success"
	if err != nil {
		result = "rejected"
	}
	actionsTotal.WithLabelValues(action, result).Inc()
}

// SessionOpened increments the open session gauge
func SessionOpened() {
	openSessions.Inc()
}

// SessionClosed decrements the open session gauge
func SessionClosed() {
	openSessions.Dec()
}

// Exported records an export in the given format
func Exported(format string) {
	exportsTotal.WithLabelValues(format).Inc()
}

// ObserveRequest records a served API request
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
