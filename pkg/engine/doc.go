// Package engine implements the product cache engine: a layered lookup
// chain that guarantees a best-effort answer under any combination of tier
// failures.
//
// The lookup order per id is:
//
//  1. Remote cache (Redis) - shared across processes
//  2. Local TTL store - in-process, LRU-bounded
//  3. Primary catalog source - slow, unreliable
//  4. Secondary catalog source - optional fallback
//  5. Synthesized placeholder - degraded record, short TTL so the
//     condition self-heals once the source recovers
//
// Values obtained from a slower tier are written back to the faster tiers:
// synchronously to the local store, fire-and-forget to the remote cache so
// the caller's response is never delayed by a cache write.
//
// # Availability over strict correctness
//
// GetProduct never fails for availability reasons. Every tier-level
// failure is absorbed with a warning log and fallthrough to the next tier,
// ending in a synthesized placeholder rather than an error. The only error
// surfaces are catalog.ErrInvalidArgument for malformed input and the
// caller's own context cancellation.
//
// # Single-flight
//
// At most one upstream fetch per product id is in flight at any instant.
// Concurrent lookups of the same id - including batch lookups and preload
// runs - join the existing fetch and observe its resolved value. A caller
// that cancels while waiting abandons only its own wait; the shared fetch
// completes for the benefit of the other waiters.
//
// # Basic Usage
//
//	eng, err := engine.New(engine.DefaultConfig(), store, remote, catalogClient, nil)
//	if err != nil {
//		return err
//	}
//
//	p, err := eng.GetProduct(ctx, "p1") // always product-shaped on nil error
//
//	products, err := eng.GetProducts(ctx, []string{"p1", "p2"})
//
//	_ = eng.Preload(ctx, ids, 8) // warm caches, bounded concurrency
//
// # Metrics
//
// The engine exports Prometheus metrics:
//
//   - product_cache_lookups_total{tier, result} - lookups by resolving tier
//   - product_cache_tier_errors_total{tier} - absorbed tier failures
//   - product_cache_lookup_duration_seconds - end-to-end lookup latency
//   - product_cache_shared_flights_total - coalesced duplicate lookups
//   - product_cache_writebacks_total{destination} - tier write-backs
package engine
