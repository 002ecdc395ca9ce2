// Registers:
//
//	#arbiter_snapshot_updates_total
//	#arbiter_messages_skipped_total
//	#arbiter_funding_fetch_errors_total
//	#arbiter_stream_connections
//	#arbiter_store_entries
//	#arbiter_scoring_duration_seconds
//	#go_* and process_* system metrics
//
// Handler exposes them for the query server's /metrics route.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	registry = prometheus.NewRegistry()

	snapshotUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_snapshot_updates_total",
			Help: "Number of order book snapshots written to the store",
		},
		[]string{"exchange", "pair"},
	)

	messagesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_messages_skipped_total",
			Help: "Number of feed messages rejected and skipped",
		},
		[]string{"exchange", "reason"},
	)

	fundingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_funding_fetch_errors_total",
			Help: "Number of failed funding rate fetches",
		},
		[]string{"exchange"},
	)

	streamConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arbiter_stream_connections",
			Help: "Open order book stream connections",
		},
		[]string{"exchange"},
	)

	storeEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbiter_store_entries",
		Help: "Number of (exchange, pair) entries in the snapshot store",
	})

	scoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbiter_scoring_duration_seconds",
		Help:    "Time spent computing the score list",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	})
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			snapshotUpdates,
			messagesSkipped,
			fundingErrors,
			streamConnections,
			storeEntries,
			scoringDuration,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registered collectors in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncrementSnapshotUpdate counts one snapshot written for exchange and pair.
func IncrementSnapshotUpdate(exchange, pair string) {
	snapshotUpdates.WithLabelValues(exchange, pair).Inc()
}

// IncrementFundingError counts one failed funding fetch.
func IncrementFundingError(exchange string) {
	fundingErrors.WithLabelValues(exchange).Inc()
}

// StreamConnected adjusts the open connection gauge by one.
func StreamConnected(exchange string, up bool) {
	if up {
		streamConnections.WithLabelValues(exchange).Inc()
		return
	}
	streamConnections.WithLabelValues(exchange).Dec()
}

// SetStoreEntries records the current store size.
func SetStoreEntries(n int) {
	storeEntries.Set(float64(n))
}

// ObserveScoring records how long a scoring pass took.
func ObserveScoring(d time.Duration) {
	scoringDuration.Observe(d.Seconds())
}
