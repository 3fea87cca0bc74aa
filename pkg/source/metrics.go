package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_source_requests_total",
		Help: "Total catalog source requests by operation and status",
	}, []string{"operation", "status"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "product_source_request_duration_seconds",
		Help:    "Catalog source request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"operation"})

	sourceRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_source_retries_total",
		Help: "Total number of catalog request retry attempts",
	})

	sourceRetryBackoff = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "product_source_retry_backoff_seconds",
		Help:    "Backoff duration for catalog request retries",
		Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5},
	})

	sourceRetryExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_source_retry_exhausted_total",
		Help: "Total number of catalog requests that exhausted all retries",
	})

	sourceBreakerRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_source_breaker_rejections_total",
		Help: "Total requests rejected by an open circuit breaker",
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "product_source_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
)
