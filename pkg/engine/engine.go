package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/retailstack/product-cache/pkg/catalog"
	"github.com/retailstack/product-cache/pkg/localcache"
	"github.com/retailstack/product-cache/pkg/logging"
	"github.com/retailstack/product-cache/pkg/remotecache"
)

// writeBackTimeout bounds fire-and-forget remote cache writes.
const writeBackTimeout = 2 * time.Second

// preloadChunkSize is the number of ids resolved per preload batch lookup.
const preloadChunkSize = 50

// Config holds engine configuration.
type Config struct {
	// DefaultTTL is the long-tier TTL for products obtained from a source.
	DefaultTTL time.Duration

	// NegativeTTL caches confirmed absences so known-missing ids do not
	// hammer the source.
	NegativeTTL time.Duration

	// SynthesizedTTL is the self-heal window for degraded placeholder
	// records. Keep it short: once the source recovers, placeholders
	// expire and real values take their place.
	SynthesizedTTL time.Duration

	// FetchConcurrency bounds simultaneous outbound source calls across
	// all lookups, batches and preloads.
	FetchConcurrency int

	// EnableRemoteCache toggles the remote tier. When false the engine
	// skips remote lookups and write-backs entirely and operates on the
	// local store plus sources (graceful degradation mode).
	EnableRemoteCache bool

	// KeyPrefix namespaces cache keys (e.g. "product:").
	KeyPrefix string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:        24 * time.Hour,
		NegativeTTL:       5 * time.Minute,
		SynthesizedTTL:    45 * time.Second,
		FetchConcurrency:  8,
		EnableRemoteCache: true,
		KeyPrefix:         "product:",
	}
}

// localEntry is the value stored in the local TTL store.
type localEntry struct {
	product  *catalog.Product
	negative bool // confirmed absent
	degraded bool // synthesized placeholder, never written back to remote
}

// Engine is the product cache engine. It owns the statistics and
// references (does not own) the remote cache client, the local store and
// the catalog sources.
type Engine struct {
	config    Config
	store     *localcache.Store
	remote    *remotecache.Client
	primary   catalog.Source
	secondary catalog.Source // nil when not configured
	sem       *semaphore.Weighted
	inflight  *inflightGroup
	stats     *stats
	logger    zerolog.Logger
}

// New creates a cache engine. remote may be nil only when
// cfg.EnableRemoteCache is false; secondary is optional.
func New(cfg Config, store *localcache.Store, remote *remotecache.Client, primary, secondary catalog.Source) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if primary == nil {
		return nil, fmt.Errorf("primary source is required")
	}
	if cfg.EnableRemoteCache && remote == nil {
		return nil, fmt.Errorf("remote cache client is required when the remote tier is enabled")
	}
	if cfg.DefaultTTL <= 0 || cfg.NegativeTTL <= 0 || cfg.SynthesizedTTL <= 0 {
		return nil, fmt.Errorf("all TTLs must be positive")
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultConfig().FetchConcurrency
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}

	return &Engine{
		config:    cfg,
		store:     store,
		remote:    remote,
		primary:   primary,
		secondary: secondary,
		sem:       semaphore.NewWeighted(int64(cfg.FetchConcurrency)),
		inflight:  newInflightGroup(),
		stats:     newStats(),
		logger:    logging.NewLogger("cache-engine"),
	}, nil
}

func (e *Engine) key(id string) string {
	return e.config.KeyPrefix + id
}

// GetProduct resolves one product through the tier chain. On a nil error
// the returned product is never nil: total tier failure yields a degraded
// placeholder with Available == false. Only a malformed id or the caller's
// own context cancellation produce an error.
func (e *Engine) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty product id", catalog.ErrInvalidArgument)
	}

	start := time.Now()
	defer func() {
		engineLookupDuration.Observe(time.Since(start).Seconds())
	}()

	call, owner := e.inflight.claim(id)
	if owner {
		// The chain walk runs detached from this caller's context so a
		// cancelled caller does not abort the fetch other waiters share.
		go func() {
			res := e.resolve(context.WithoutCancel(ctx), id)
			e.inflight.complete(id, call, res)
		}()
	}

	select {
	case <-call.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	e.record(call.res)
	return call.res.product, nil
}

// GetProducts resolves many ids. Cache tiers are consulted per id; the
// remainder is fetched with batch source calls rather than per-id fetches.
// The returned map has a product-shaped value for every requested id. A
// cancelled caller gets ctx.Err() like GetProduct; claimed batch fetches
// still run to completion for other waiters.
func (e *Engine) GetProducts(ctx context.Context, ids []string) (map[string]*catalog.Product, error) {
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: empty product id in batch", catalog.ErrInvalidArgument)
		}
	}

	results := make(map[string]*catalog.Product, len(ids))

	var owned []string
	ownedCalls := make(map[string]*inflightCall)
	joined := make(map[string]*inflightCall)

	for _, id := range ids {
		if _, done := results[id]; done {
			continue // duplicate id in input
		}
		if _, waiting := ownedCalls[id]; waiting {
			continue
		}
		if _, waiting := joined[id]; waiting {
			continue
		}

		if res, ok := e.lookupCaches(ctx, id); ok {
			e.record(res)
			results[id] = res.product
			continue
		}

		call, isOwner := e.inflight.claim(id)
		if isOwner {
			owned = append(owned, id)
			ownedCalls[id] = call
		} else {
			joined[id] = call
		}
	}

	// The claimed batch resolves detached so co-waiters on the same ids are
	// served even when this caller cancels; the caller itself waits on the
	// calls like any joiner and can abandon the wait.
	if len(owned) > 0 {
		batchCtx := context.WithoutCancel(ctx)
		go func() {
			resolved := e.resolveBatch(batchCtx, owned)
			for _, id := range owned {
				e.inflight.complete(id, ownedCalls[id], resolved[id])
			}
		}()
		for id, call := range ownedCalls {
			joined[id] = call
		}
	}

	for id, call := range joined {
		select {
		case <-call.done:
			e.record(call.res)
			results[id] = call.res.product
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return results, nil
}

// Preload warms the caches for ids with at most concurrency simultaneous
// batch lookups (0 uses the configured fetch concurrency). In-flight
// fetches for the same ids are shared with live traffic, never duplicated.
func (e *Engine) Preload(ctx context.Context, ids []string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = e.config.FetchConcurrency
	}

	start := time.Now()
	sem := semaphore.NewWeighted(int64(concurrency))

	for chunkStart := 0; chunkStart < len(ids); chunkStart += preloadChunkSize {
		end := chunkStart + preloadChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[chunkStart:end]

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer sem.Release(1)
			if _, err := e.GetProducts(ctx, chunk); err != nil {
				e.logger.Warn().Err(err).Int("ids", len(chunk)).Msg("Preload chunk failed")
				return
			}
			enginePreloadedIDs.Add(float64(len(chunk)))
		}()
	}

	// Wait for all chunks by draining the semaphore.
	if err := sem.Acquire(ctx, int64(concurrency)); err != nil {
		return err
	}
	sem.Release(int64(concurrency))

	e.logger.Info().
		Int("ids", len(ids)).
		Dur("duration", time.Since(start)).
		Msg("Preload complete")
	return nil
}

// Invalidate removes id from the local store and the remote cache.
// In-flight fetches for the id are not touched.
func (e *Engine) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty product id", catalog.ErrInvalidArgument)
	}

	key := e.key(id)
	e.store.Delete(key)
	if e.config.EnableRemoteCache {
		e.remote.Delete(ctx, key)
	}

	e.logger.Debug().Str("key", key).Msg("Invalidated")
	return nil
}

// InvalidateBatch removes every id from the local store and the remote
// cache with a single remote round trip.
func (e *Engine) InvalidateBatch(ctx context.Context, ids []string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty product id in batch", catalog.ErrInvalidArgument)
		}
		keys = append(keys, e.key(id))
	}

	for _, key := range keys {
		e.store.Delete(key)
	}
	if e.config.EnableRemoteCache && len(keys) > 0 {
		e.remote.Delete(ctx, keys...)
	}
	return nil
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Snapshot {
	return e.stats.snapshot()
}

// ResetStats zeroes all counters. Admin operation.
func (e *Engine) ResetStats() {
	e.stats.reset()
}

func (e *Engine) record(res resolution) {
	if res.miss {
		e.stats.recordMiss()
		return
	}
	e.stats.recordHit(res.tier)
}

// lookupCaches consults the remote and local tiers. A local hit schedules
// a fire-and-forget remote write-back so the faster shared tier catches up.
func (e *Engine) lookupCaches(ctx context.Context, id string) (resolution, bool) {
	key := e.key(id)

	if e.config.EnableRemoteCache {
		if entry, ok := e.remote.Get(ctx, key); ok {
			if entry.Negative || entry.Product == nil {
				return resolution{product: catalog.Placeholder(id), tier: TierRemote}, true
			}
			// Populate the local tier so the next lookup skips the network.
			e.writeBackLocal(key, localEntry{product: entry.Product}, e.config.DefaultTTL)
			return resolution{product: entry.Product, tier: TierRemote}, true
		}
	}

	if v, ok := e.store.Get(key); ok {
		le := v.(localEntry)
		if le.negative {
			return resolution{product: catalog.Placeholder(id), tier: TierLocal}, true
		}
		if !le.degraded {
			e.writeBackRemote(key, le.product, TierLocal, e.config.DefaultTTL)
		}
		return resolution{product: le.product, tier: TierLocal}, true
	}

	return resolution{}, false
}

// resolve walks the full chain for one id. It never fails: the worst case
// is a synthesized placeholder.
func (e *Engine) resolve(ctx context.Context, id string) resolution {
	if res, ok := e.lookupCaches(ctx, id); ok {
		return res
	}

	p, err := e.fetchOne(ctx, e.primary, id)
	if err == nil {
		e.cacheProduct(id, p, TierSource)
		return resolution{product: p, tier: TierSource}
	}
	if catalog.IsNotFound(err) {
		return e.cacheNegative(id)
	}
	e.tierFailed(TierSource, id, err)

	if e.secondary != nil {
		p, err = e.fetchOne(ctx, e.secondary, id)
		if err == nil {
			e.cacheProduct(id, p, TierSecondary)
			return resolution{product: p, tier: TierSecondary}
		}
		if catalog.IsNotFound(err) {
			return e.cacheNegative(id)
		}
		e.tierFailed(TierSecondary, id, err)
	}

	return e.synthesize(id)
}

// resolveBatch walks the chain for ids that missed both cache tiers, using
// batch source calls. Every id gets a resolution.
func (e *Engine) resolveBatch(ctx context.Context, ids []string) map[string]resolution {
	resolved := make(map[string]resolution, len(ids))

	unresolved := e.fetchBatchTier(ctx, e.primary, TierSource, ids, resolved)
	if len(unresolved) > 0 && e.secondary != nil {
		unresolved = e.fetchBatchTier(ctx, e.secondary, TierSecondary, unresolved, resolved)
	}
	for _, id := range unresolved {
		resolved[id] = e.synthesize(id)
	}

	return resolved
}

// fetchBatchTier resolves ids against one source tier and returns the ids
// that remain unresolved (unavailable-class failures).
func (e *Engine) fetchBatchTier(ctx context.Context, src catalog.Source, tier Tier, ids []string, resolved map[string]resolution) []string {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return ids
	}
	batch, err := src.FetchBatch(ctx, ids)
	e.sem.Release(1)

	if err != nil {
		// FetchBatch contracts never to abort, but guard anyway.
		e.tierFailed(tier, "", err)
		return ids
	}

	var unresolved []string
	for _, id := range ids {
		r, ok := batch[id]
		switch {
		case ok && r.Product != nil:
			e.cacheProduct(id, r.Product, tier)
			resolved[id] = resolution{product: r.Product, tier: tier}
		case ok && catalog.IsNotFound(r.Err):
			resolved[id] = e.cacheNegative(id)
		default:
			if ok {
				e.tierFailed(tier, id, r.Err)
			}
			unresolved = append(unresolved, id)
		}
	}
	return unresolved
}

func (e *Engine) fetchOne(ctx context.Context, src catalog.Source, id string) (*catalog.Product, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrSourceUnavailable, err)
	}
	defer e.sem.Release(1)
	return src.Fetch(ctx, id)
}

// cacheProduct writes a freshly fetched product to both faster tiers:
// synchronously to the local store, asynchronously to the remote cache.
func (e *Engine) cacheProduct(id string, p *catalog.Product, tier Tier) {
	key := e.key(id)
	e.writeBackLocal(key, localEntry{product: p}, e.config.DefaultTTL)
	e.writeBackRemote(key, p, tier, e.config.DefaultTTL)
}

// cacheNegative records a confirmed absence in the local store only, with
// the short negative TTL, and classifies the lookup as a miss.
func (e *Engine) cacheNegative(id string) resolution {
	e.writeBackLocal(e.key(id), localEntry{negative: true}, e.config.NegativeTTL)
	e.logger.Debug().Str("product_id", id).Msg("Negative-cached confirmed absence")
	return resolution{product: catalog.Placeholder(id), miss: true}
}

// synthesize produces the degraded placeholder for a total tier failure.
// The short TTL makes the condition self-heal once a source recovers.
func (e *Engine) synthesize(id string) resolution {
	p := catalog.Placeholder(id)
	e.writeBackLocal(e.key(id), localEntry{product: p, degraded: true}, e.config.SynthesizedTTL)
	e.logger.Warn().Str("product_id", id).Msg("All tiers failed, serving synthesized placeholder")
	return resolution{product: p, tier: TierSynthesized}
}

func (e *Engine) tierFailed(tier Tier, id string, err error) {
	e.stats.recordError(tier)
	e.logger.Warn().
		Err(err).
		Str("tier", string(tier)).
		Str("product_id", id).
		Msg("Tier failed, falling through")
}

func (e *Engine) writeBackLocal(key string, le localEntry, ttl time.Duration) {
	if err := e.store.Set(key, le, ttl); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Local write-back failed")
		return
	}
	engineWriteBacks.WithLabelValues("local").Inc()
}

// writeBackRemote schedules a fire-and-forget remote cache write. The
// caller's response is never delayed by it; errors are logged inside the
// remote client and swallowed.
func (e *Engine) writeBackRemote(key string, p *catalog.Product, tier Tier, ttl time.Duration) {
	if !e.config.EnableRemoteCache || p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeBackTimeout)
		defer cancel()

		e.remote.Set(ctx, key, &remotecache.Entry{
			Product:  p,
			Tier:     string(tier),
			CachedAt: time.Now(),
		}, ttl)
		engineWriteBacks.WithLabelValues("remote").Inc()
	}()
}
