package rates

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shq_rate_cache_hits_total",
			Help: "Total number of rate tables served from the session cache",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shq_rate_cache_misses_total",
			Help: "Total number of rate lookups that required a provider fetch",
		},
	)

	// fetches counts provider calls by outcome: "ok", "empty", "error".
	fetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shq_rate_fetches_total",
			Help: "Total number of batch rate fetches by outcome",
		},
		[]string{"outcome"},
	)

	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shq_rate_fetch_duration_seconds",
			Help:    "Duration of batch rate fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shq_rate_cache_invalidations_total",
			Help: "Total number of session rate cache clears",
		},
	)

	// matchOutcomes counts matcher results by winning tier, or "none".
	matchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shq_rate_matches_total",
			Help: "Total number of method-to-rate resolutions by tier",
		},
		[]string{"tier"},
	)

	storageDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shq_rate_storage_degraded_total",
			Help: "Total number of times rate storage fell back to an ephemeral scope",
		},
	)
)
