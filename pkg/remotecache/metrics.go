package remotecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_remote_hits_total",
		Help: "Total number of remote cache hits",
	})

	remoteMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_remote_misses_total",
		Help: "Total number of remote cache misses",
	})

	remoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_remote_errors_total",
		Help: "Total number of remote cache operation errors by operation",
	}, []string{"operation"}) // "get", "set", "delete", "exists", "decode"
)
