// Package metrics exposes the Engine Lifecycle's Prometheus instrumentation.
// Grounded on firestige-Otus's internal/metrics package: package-level
// promauto collectors plus a small HTTP server wrapper around
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTotal counts every poll cycle outcome, labeled by result
	// ("ok", "timeout", "error") per spec.md §7's error taxonomy.
	PollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgwmonitor_poll_total",
			Help: "Total number of poll cycles, labeled by result",
		},
		[]string{"result"},
	)

	// PollersActive tracks how many per-gateway poller goroutines are
	// currently running (one per gateway). It is not bounded by
	// max_polling: the shared semaphore limits concurrent executions, not
	// this count.
	PollersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgwmonitor_pollers_active",
			Help: "Number of poller goroutines currently running",
		},
	)

	// RTPStoreSize mirrors the current size of the RTPs ordered store.
	RTPStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgwmonitor_rtp_store_size",
			Help: "Current number of RTP session records held in memory",
		},
	)

	// DiscoveryTotal counts discovery runs, labeled by result.
	DiscoveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgwmonitor_discovery_total",
			Help: "Total number of discovery runs, labeled by result",
		},
		[]string{"result"},
	)
)

// PollResult labels for PollTotal.
const (
	PollResultOK      = "ok"
	PollResultTimeout = "timeout"
	PollResultError   = "error"
)
