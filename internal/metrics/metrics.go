// Package metrics exposes Prometheus instrumentation for the entity cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request batcher
	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycache_batch_flushes_total",
			Help: "Total number of bulk fetches issued by request batchers",
		},
		[]string{"kind", "result"}, // "ok", "error"
	)

	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitycache_batch_size",
			Help:    "Number of distinct ids per bulk fetch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"kind"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitycache_batch_duration_seconds",
			Help:    "Duration of bulk fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Entity cache writes
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycache_writes_total",
			Help: "Entity cache writes by kind, mode and outcome",
		},
		[]string{"kind", "mode", "outcome"}, // mode: "prime", "replace"; outcome: "written", "skipped"
	)

	// Query coordinator
	QueryReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycache_query_reads_total",
			Help: "Query reads by kind and freshness",
		},
		[]string{"kind", "state"}, // "fresh", "stale", "miss", "disabled"
	)

	QueryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycache_query_fetches_total",
			Help: "Query fetches by kind and result",
		},
		[]string{"kind", "result"}, // "found", "missing", "error", "superseded"
	)

	// Mutation coordinator
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycache_mutations_total",
			Help: "Optimistic mutations by action and outcome",
		},
		[]string{"action", "outcome"}, // "committed", "rolled_back", "rejected"
	)

	// Lineups
	LineupLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycache_lineup_loads_total",
			Help: "Lineup loads by source",
		},
		[]string{"source"}, // "network", "rehydrate"
	)

	// Legacy bridge
	LegacyWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycache_legacy_writes_total",
			Help: "Legacy store mirror writes by result",
		},
		[]string{"result"},
	)

	// Remote circuit breaker
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entitycache_remote_breaker_state",
			Help: "Remote circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordBatch records a completed bulk fetch.
func RecordBatch(kind string, size int, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	BatchFlushes.WithLabelValues(kind, result).Inc()
	BatchSize.WithLabelValues(kind).Observe(float64(size))
	BatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordWrite records an entity cache write attempt.
func RecordWrite(kind, mode string, written bool) {
	outcome := "written"
	if !written {
		outcome = "skipped"
	}
	CacheWrites.WithLabelValues(kind, mode, outcome).Inc()
}

// RecordQueryRead records how a query read was served.
func RecordQueryRead(kind, state string) {
	QueryReads.WithLabelValues(kind, state).Inc()
}

// RecordQueryFetch records the outcome of a query fetch.
func RecordQueryFetch(kind, result string) {
	QueryFetches.WithLabelValues(kind, result).Inc()
}

// RecordMutation records the outcome of an optimistic mutation.
func RecordMutation(action, outcome string) {
	Mutations.WithLabelValues(action, outcome).Inc()
}

// RecordLineupLoad records where a lineup page came from.
func RecordLineupLoad(source string) {
	LineupLoads.WithLabelValues(source).Inc()
}

// RecordLegacyWrite records a legacy mirror write.
func RecordLegacyWrite(err error) {
	if err != nil {
		LegacyWrites.WithLabelValues("error").Inc()
		return
	}
	LegacyWrites.WithLabelValues("ok").Inc()
}

// SetBreakerState records the numeric breaker state for name.
func SetBreakerState(name string, state float64) {
	BreakerState.WithLabelValues(name).Set(state)
}
