// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HistoryEntriesAppended counts ledger entries by provenance note.
var HistoryEntriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fundkeeper",
	Subsystem: "ledger",
	Name:      "history_entries_appended_total",
	Help:      "Total history entries appended, by note.",
}, []string{"note"})

// ConsistencyMismatches counts reads where the cached current amount
// disagreed with the last history total.
var ConsistencyMismatches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fundkeeper",
	Subsystem: "ledger",
	Name:      "consistency_mismatches_total",
	Help:      "Total detected mismatches between current amount and history.",
})

// ConsistencyRepairs counts mismatches fixed by rewriting the cached amount.
var ConsistencyRepairs = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fundkeeper",
	Subsystem: "ledger",
	Name:      "consistency_repairs_total",
	Help:      "Total current amounts rewritten from history.",
})

// ImageNormalizeDuration tracks codec latency by image kind.
var ImageNormalizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "fundkeeper",
	Subsystem: "imaging",
	Name:      "normalize_duration_seconds",
	Help:      "Time spent normalizing uploaded images.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"kind"})

// ImageNormalizeFailures counts rejected uploads by image kind.
var ImageNormalizeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fundkeeper",
	Subsystem: "imaging",
	Name:      "normalize_failures_total",
	Help:      "Total uploads the codec rejected.",
}, []string{"kind"})

// ArchiveFailures counts raw uploads that could not be archived.
var ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fundkeeper",
	Subsystem: "archive",
	Name:      "failures_total",
	Help:      "Total original uploads that failed to archive.",
})

// HTTPRequestDuration tracks API latency.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "fundkeeper",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by method, route pattern and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})
