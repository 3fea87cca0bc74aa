package remotecache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/retailstack/product-cache/pkg/logging"
)

// Config holds remote cache client configuration.
type Config struct {
	// OpTimeout bounds every Redis round trip so a slow remote cache
	// cannot stall the lookup chain.
	OpTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		OpTimeout: 500 * time.Millisecond,
	}
}

// Health is the result of a HealthCheck round trip.
type Health struct {
	Status    string  `json:"status"` // "up" or "down"
	LatencyMS float64 `json:"latency_ms"`
}

// Client wraps a Redis client with best-effort semantics. Get returns a
// miss both on true absence and on transport failure; Set, Delete and
// Exists log and swallow errors. Callers must never treat a miss as proof
// of absence.
type Client struct {
	redis     *redis.Client
	config    Config
	logger    zerolog.Logger
	connected atomic.Bool
}

// New creates a remote cache client. Call Connect before first use;
// operations on a never-connected client behave as misses.
func New(redisClient *redis.Client, cfg Config) *Client {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultConfig().OpTimeout
	}
	return &Client{
		redis:  redisClient,
		config: cfg,
		logger: logging.NewLogger("remote-cache"),
	}
}

// Connect pings the remote cache and records connection state. Idempotent:
// calling while already connected is a no-op. A failed connect does not
// return an error; callers check IsConnected.
func (c *Client) Connect(ctx context.Context) {
	if c.connected.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.connected.Store(false)
		c.logger.Warn().Err(err).Msg("Remote cache unreachable, operating degraded")
		return
	}

	c.connected.Store(true)
	c.logger.Info().Msg("Remote cache connected")
}

// IsConnected reports the last observed connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Get retrieves an entry. Returns (nil, false) on miss, on corrupt payload,
// and on transport failure; the three are indistinguishable to callers.
func (c *Client) Get(ctx context.Context, key string) (*Entry, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			remoteMisses.Inc()
			return nil, false
		}
		c.opFailed("get", key, err)
		return nil, false
	}
	c.connected.Store(true)

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Corrupt remote cache entry, treating as miss")
		remoteErrors.WithLabelValues("decode").Inc()
		return nil, false
	}

	remoteHits.Inc()
	return &entry, true
}

// Set stores an entry with the given TTL, best-effort. Errors are logged
// and swallowed: a cache write is never allowed to fail a request.
func (c *Client) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) {
	if entry == nil || ttl <= 0 {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to marshal remote cache entry")
		remoteErrors.WithLabelValues("set").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		c.opFailed("set", key, err)
		return
	}
	c.connected.Store(true)
}

// Delete removes keys, best-effort.
func (c *Client) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.opFailed("delete", keys[0], err)
	}
}

// Exists reports whether key is present. Returns false on transport
// failure, like Get.
func (c *Client) Exists(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	n, err := c.redis.Exists(ctx, key).Result()
	if err != nil {
		c.opFailed("exists", key, err)
		return false
	}
	return n > 0
}

// HealthCheck performs a PING round trip and reports status plus latency.
// Used by monitoring endpoints, not by the hot lookup path.
func (c *Client) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	start := time.Now()
	err := c.redis.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		c.connected.Store(false)
		return Health{Status: "down", LatencyMS: float64(latency.Microseconds()) / 1000}
	}

	c.connected.Store(true)
	return Health{Status: "up", LatencyMS: float64(latency.Microseconds()) / 1000}
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	return c.redis.Close()
}

func (c *Client) opFailed(op, key string, err error) {
	c.connected.Store(false)
	remoteErrors.WithLabelValues(op).Inc()
	c.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("Remote cache operation failed, degrading")
}
