package localcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	localHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_local_hits_total",
		Help: "Total number of local TTL store hits",
	})

	localMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_local_misses_total",
		Help: "Total number of local TTL store misses (absent or expired)",
	})

	localEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_local_evictions_total",
		Help: "Total number of entries evicted by the LRU capacity policy",
	})

	localSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "product_cache_local_entries",
		Help: "Current number of entries in the local TTL store",
	})
)
