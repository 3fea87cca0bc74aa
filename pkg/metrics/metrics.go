// Package metrics provides the centralized Prometheus metrics registry for
// the product cache. All metrics are defined in their respective packages
// (engine, localcache, remotecache, source) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the product cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Engine Metrics (pkg/engine):
//   - product_cache_lookups_total{tier, result} (Counter): Lookups by resolving tier and outcome (hit/miss)
//   - product_cache_tier_errors_total{tier} (Counter): Tier failures absorbed by fallthrough
//   - product_cache_lookup_duration_seconds (Histogram): End-to-end lookup duration
//   - product_cache_shared_flights_total (Counter): Lookups coalesced onto an in-flight fetch
//   - product_cache_writebacks_total{destination} (Counter): Write-backs by destination (remote/local)
//   - product_cache_preloaded_ids_total (Counter): Ids warmed through Preload
//
// Local Store Metrics (pkg/localcache):
//   - product_cache_local_hits_total (Counter): Local store hits
//   - product_cache_local_misses_total (Counter): Local store misses (absent or expired)
//   - product_cache_local_evictions_total (Counter): LRU evictions
//   - product_cache_local_entries (Gauge): Current entry count
//
// Remote Cache Metrics (pkg/remotecache):
//   - product_cache_remote_hits_total (Counter): Remote cache hits
//   - product_cache_remote_misses_total (Counter): Remote cache misses
//   - product_cache_remote_errors_total{operation} (Counter): Swallowed Redis errors by operation
//
// Source Metrics (pkg/source):
//   - product_source_requests_total{operation, status} (Counter): Catalog requests by operation and HTTP status
//   - product_source_request_duration_seconds{operation} (Histogram): Catalog request duration
//   - product_source_retries_total (Counter): Retry attempts for unavailable-class errors
//   - product_source_retry_backoff_seconds (Histogram): Backoff duration per retry
//   - product_source_retry_exhausted_total (Counter): Requests that exhausted max retries
//   - product_source_breaker_rejections_total (Counter): Requests rejected by the open circuit breaker
//   - product_source_breaker_state (Gauge): Circuit breaker state (0 closed, 1 half-open, 2 open)
//
// Example Prometheus Queries:
//
//   # Overall Cache Hit Rate
//   sum(rate(product_cache_lookups_total{result="hit"}[5m])) /
//   sum(rate(product_cache_lookups_total[5m]))
//
//   # Share of Lookups Served Without a Source Round Trip
//   sum(rate(product_cache_lookups_total{tier=~"remote|local"}[5m])) /
//   sum(rate(product_cache_lookups_total[5m]))
//
//   # Synthesized Placeholder Rate (availability degradation)
//   rate(product_cache_lookups_total{tier="synthesized"}[5m])
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(product_cache_lookup_duration_seconds_bucket[5m]))
//
//   # Circuit Breaker Open
//   product_source_breaker_state == 2
