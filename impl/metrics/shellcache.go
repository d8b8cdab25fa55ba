package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation outcomes
const (
	OutcomeCold   = "cold"
	OutcomeDiff   = "diff"
	OutcomeFailed = "failed"
)

var IncCacheHits noLabel = func() {}
var IncCacheMisses noLabel = func() {}
var IncPassThrough noLabel = func() {}
var IncNetworkFetches noLabel = func() {}
var IncFetchErrors noLabel = func() {}
var AddEvictions count = func(int) {}
var AddRetained count = func(int) {}
var AddStagedWrites count = func(int) {}
var IncReconciliations withLabel = func(string) {}
var IncOfflineSyncFetches noLabel = func() {}
var IncControlMessages withLabel = func(string) {}
var SetLiveEntries count = func(int) {}

type withLabel func(string)
type noLabel func()
type count func(int)

const (
	cache_hits_total           = "cache_hits_total"
	cache_misses_total         = "cache_misses_total"
	pass_through_total         = "pass_through_total"
	network_fetches_total      = "network_fetches_total"
	fetch_errors_total         = "fetch_errors_total"
	evictions_total            = "evictions_total"
	retained_total             = "retained_total"
	staged_writes_total        = "staged_writes_total"
	reconciliations_total      = "reconciliations_total"
	offline_sync_fetches_total = "offline_sync_fetches_total"
	control_messages_total     = "control_messages_total"
	live_entries               = "live_entries"
	outcome_label              = "outcome"
	message_label              = "message"
	namespace                  = "shellcache"
)

// addShellcacheMetrics creates the shellcache metrics, registers them with the prometheus
// library, and swaps the NOP functions for ones that update the metrics.
func addShellcacheMetrics() {
	IncCacheHits = counter(cache_hits_total, "Requests for manifest resources served from the live cache")
	IncCacheMisses = counter(cache_misses_total, "Requests for manifest resources not found in the live cache")
	IncPassThrough = counter(pass_through_total, "Requests passed through to the origin without caching")
	IncNetworkFetches = counter(network_fetches_total, "Fetches from the origin by the cache manager")
	IncFetchErrors = counter(fetch_errors_total, "Fetches from the origin that failed at the network level")
	IncOfflineSyncFetches = counter(offline_sync_fetches_total, "Resources fetched by offline sync")

	AddEvictions = adder(evictions_total, "Live cache entries evicted by reconciliation")
	AddRetained = adder(retained_total, "Live cache entries retained by reconciliation")
	AddStagedWrites = adder(staged_writes_total, "Staged entries copied into the live cache by reconciliation")

	///
	reconciliations := promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:      reconciliations_total,
			Namespace: namespace,
			Help:      "Reconciliations by outcome (cold, diff, failed)",
		},
		[]string{outcome_label},
	)
	IncReconciliations = func(outcome string) {
		reconciliations.With(prometheus.Labels{outcome_label: outcome}).Add(1)
	}

	///
	messages := promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:      control_messages_total,
			Namespace: namespace,
			Help:      "Control messages received from clients",
		},
		[]string{message_label},
	)
	IncControlMessages = func(msg string) {
		messages.With(prometheus.Labels{message_label: msg}).Add(1)
	}

	///
	liveEntries := promauto.NewGauge(
		prometheus.GaugeOpts{
			Name:      live_entries,
			Namespace: namespace,
			Help:      "Number of entries in the live cache as of the last reconciliation",
		},
	)
	SetLiveEntries = func(n int) {
		liveEntries.Set(float64(n))
	}
}

func counter(name, help string) noLabel {
	c := promauto.NewCounter(
		prometheus.CounterOpts{
			Name:      name,
			Namespace: namespace,
			Help:      help,
		},
	)
	return func() {
		c.Add(1)
	}
}

func adder(name, help string) count {
	c := promauto.NewCounter(
		prometheus.CounterOpts{
			Name:      name,
			Namespace: namespace,
			Help:      help,
		},
	)
	return func(n int) {
		c.Add(float64(n))
	}
}
