package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_lookups_total",
		Help: "Total product lookups by resolving tier and result",
	}, []string{"tier", "result"}) // result: "hit", "miss"

	engineTierErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_tier_errors_total",
		Help: "Total absorbed tier-level failures by tier",
	}, []string{"tier"})

	engineLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "product_cache_lookup_duration_seconds",
		Help:    "End-to-end product lookup duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	engineSharedFlights = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_shared_flights_total",
		Help: "Total lookups that joined an already in-flight fetch for the same id",
	})

	engineWriteBacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_writebacks_total",
		Help: "Total write-backs to faster tiers by destination",
	}, []string{"destination"}) // "remote", "local"

	enginePreloadedIDs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_preloaded_ids_total",
		Help: "Total ids warmed via Preload",
	})
)
