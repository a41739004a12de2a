package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider chain and gate counters, registered on the default registerer.
var (
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_provider_requests_total",
		Help: "Provider fetch attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	CacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_cache_events_total",
		Help: "Cache hits, misses and forced refreshes.",
	}, []string{"event"})

	GateResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_gate_results_total",
		Help: "Gate outcomes by terminal status.",
	}, []string{"status"})

	LoopRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "riskgate_loop_rounds",
		Help:    "Rounds consumed per feedback-loop lineage.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
)

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeStale   = "stale"
	EventHit       = "hit"
	EventMiss      = "miss"
	EventRefresh   = "refresh"
	EventCoalesced = "coalesced"
)
