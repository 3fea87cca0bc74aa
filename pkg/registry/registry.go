package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/retailstack/product-cache/pkg/catalog"
	"github.com/retailstack/product-cache/pkg/engine"
	"github.com/retailstack/product-cache/pkg/localcache"
	"github.com/retailstack/product-cache/pkg/logging"
	"github.com/retailstack/product-cache/pkg/recommend"
	"github.com/retailstack/product-cache/pkg/remotecache"
	"github.com/retailstack/product-cache/pkg/source"
)

// Options carries the construction parameters for every managed component.
type Options struct {
	// RedisAddr is the remote cache address ("host:port"). Required when
	// Engine.EnableRemoteCache is true.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Source configures the primary catalog adapter.
	Source source.Config

	// Secondary optionally configures a fallback catalog adapter.
	Secondary *source.Config

	LocalCache  localcache.Config
	RemoteCache remotecache.Config
	Engine      engine.Config

	// Scorer and RemoteRecommender are consumed as black boxes by the
	// recommendation orchestrator. Both nil leaves it unconfigured.
	Scorer            recommend.Scorer
	RemoteRecommender recommend.RemoteRecommender
}

// Registry lazily constructs and caches exactly one instance of each
// expensive component. Each component has its own slot and lock, so
// constructing one (e.g. the Redis handshake) never blocks access to an
// already-ready other. Construct a Registry explicitly at process start
// and inject it; tests build a fresh one per test.
type Registry struct {
	opts   Options
	logger zerolog.Logger

	remoteSlot    *Slot[*remotecache.Client]
	storeSlot     *Slot[*localcache.Store]
	primarySlot   *Slot[*source.CatalogClient]
	secondarySlot *Slot[*source.CatalogClient]
	engineSlot    *Slot[*engine.Engine]
	recommendSlot *Slot[*recommend.Orchestrator]
}

// New creates an empty registry. No component is constructed until first
// requested.
func New(opts Options) *Registry {
	return &Registry{
		opts:          opts,
		logger:        logging.NewLogger("registry"),
		remoteSlot:    NewSlot[*remotecache.Client]("remote-cache"),
		storeSlot:     NewSlot[*localcache.Store]("local-store"),
		primarySlot:   NewSlot[*source.CatalogClient]("catalog-source"),
		secondarySlot: NewSlot[*source.CatalogClient]("secondary-source"),
		engineSlot:    NewSlot[*engine.Engine]("cache-engine"),
		recommendSlot: NewSlot[*recommend.Orchestrator]("recommender"),
	}
}

// RemoteCache returns the shared remote cache client, dialing Redis on
// first use. A failed ping does not fail construction: the client starts
// degraded and recovers on its own.
func (r *Registry) RemoteCache(ctx context.Context) (*remotecache.Client, error) {
	return r.remoteSlot.Get(func() (*remotecache.Client, error) {
		if r.opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis address not configured")
		}

		client := remotecache.New(redis.NewClient(&redis.Options{
			Addr:     r.opts.RedisAddr,
			Password: r.opts.RedisPassword,
			DB:       r.opts.RedisDB,
		}), r.opts.RemoteCache)
		client.Connect(ctx)

		r.logger.Info().Str("addr", r.opts.RedisAddr).Bool("connected", client.IsConnected()).
			Msg("Remote cache client constructed")
		return client, nil
	})
}

// PeekRemoteCache returns the remote cache client only if one has already
// been constructed. It never dials.
func (r *Registry) PeekRemoteCache() (*remotecache.Client, bool) {
	return r.remoteSlot.Peek()
}

// LocalStore returns the shared in-process TTL store.
func (r *Registry) LocalStore(_ context.Context) (*localcache.Store, error) {
	return r.storeSlot.Get(func() (*localcache.Store, error) {
		return localcache.New(r.opts.LocalCache), nil
	})
}

// PrimarySource returns the shared primary catalog adapter.
func (r *Registry) PrimarySource(_ context.Context) (*source.CatalogClient, error) {
	return r.primarySlot.Get(func() (*source.CatalogClient, error) {
		return source.New(r.opts.Source)
	})
}

// SecondarySource returns the fallback catalog adapter, or nil when none
// is configured.
func (r *Registry) SecondarySource(_ context.Context) (*source.CatalogClient, error) {
	if r.opts.Secondary == nil {
		return nil, nil
	}
	return r.secondarySlot.Get(func() (*source.CatalogClient, error) {
		return source.New(*r.opts.Secondary)
	})
}

// Engine returns the shared product cache engine, constructing its
// dependencies through their own slots first (acyclic order).
func (r *Registry) Engine(ctx context.Context) (*engine.Engine, error) {
	return r.engineSlot.Get(func() (*engine.Engine, error) {
		store, err := r.LocalStore(ctx)
		if err != nil {
			return nil, err
		}

		var remote *remotecache.Client
		if r.opts.Engine.EnableRemoteCache {
			if remote, err = r.RemoteCache(ctx); err != nil {
				return nil, err
			}
		}

		primary, err := r.PrimarySource(ctx)
		if err != nil {
			return nil, err
		}

		var secondary catalog.Source
		if sec, err := r.SecondarySource(ctx); err != nil {
			return nil, err
		} else if sec != nil {
			secondary = sec
		}

		return engine.New(r.opts.Engine, store, remote, primary, secondary)
	})
}

// Recommender returns the recommendation orchestrator, or nil when no
// scorer or remote recommender is configured.
func (r *Registry) Recommender(ctx context.Context) (*recommend.Orchestrator, error) {
	if r.opts.Scorer == nil && r.opts.RemoteRecommender == nil {
		return nil, nil
	}
	return r.recommendSlot.Get(func() (*recommend.Orchestrator, error) {
		eng, err := r.Engine(ctx)
		if err != nil {
			return nil, err
		}
		return recommend.New(r.opts.Scorer, r.opts.RemoteRecommender, eng)
	})
}

// ShutdownAll closes every constructed component in reverse dependency
// order and resets the slots. Components never constructed are skipped;
// a later Get builds fresh instances.
func (r *Registry) ShutdownAll(_ context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(r.recommendSlot.Reset(nil))
	keep(r.engineSlot.Reset(nil))
	keep(r.secondarySlot.Reset(nil))
	keep(r.primarySlot.Reset(nil))
	keep(r.storeSlot.Reset(func(s *localcache.Store) error { return s.Close() }))
	keep(r.remoteSlot.Reset(func(c *remotecache.Client) error { return c.Close() }))

	r.logger.Info().Msg("Registry shut down")
	return firstErr
}
