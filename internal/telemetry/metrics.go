// Package telemetry exposes the evaluation engine's runtime health as
// Prometheus metrics, grounded on the teacher's registration shape
// (internal/telemetry/metrics.go: package-level prometheus.*Vec values,
// a single Init() that MustRegisters them) but repointed from HTTP
// request metrics onto the SDK-runtime surfaces the spec actually has:
// store size, data-source status transitions, big-segment cache hit/
// miss, and summarizer flush counts. The teacher's chi-based HTTP
// request middleware has no counterpart here — the module has no HTTP
// transport in scope (spec's admin/API surfaces are Non-goals) — so it
// is dropped rather than adapted.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StoreItemCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flagship_store_items",
		Help: "Number of items currently held per data kind in the in-memory store.",
	}, []string{"kind"})

	DataSourceStatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flagship_datasource_status_transitions_total",
		Help: "Count of data-source status FSM transitions, by resulting state.",
	}, []string{"state"})

	BigSegmentCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flagship_bigsegment_cache_lookups_total",
		Help: "Big-segment membership lookups, partitioned by cache hit/miss.",
	}, []string{"result"})

	BigSegmentPollSuccesses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flagship_bigsegment_poll_total",
		Help: "Big-segment metadata poll attempts, partitioned by outcome.",
	}, []string{"outcome"})

	SummarizerFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagship_summarizer_flushes_total",
		Help: "Number of times the event summarizer's counter table was snapshotted and cleared.",
	})

	BroadcastDispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flagship_broadcast_dispatches_total",
		Help: "Listener dispatch attempts made by the broadcaster, by outcome (ok, panic).",
	}, []string{"outcome"})
)

// Init registers all metrics with the default Prometheus registry. Call
// once at process startup.
func Init() {
	prometheus.MustRegister(
		StoreItemCount,
		DataSourceStatusTransitions,
		BigSegmentCacheLookups,
		BigSegmentPollSuccesses,
		SummarizerFlushes,
		BroadcastDispatches,
	)
}
