// Package config loads proxy configuration from environment variables
// and maps it onto the per-package Config structs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/retailstack/product-cache/pkg/engine"
	"github.com/retailstack/product-cache/pkg/localcache"
	"github.com/retailstack/product-cache/pkg/registry"
	"github.com/retailstack/product-cache/pkg/remotecache"
	"github.com/retailstack/product-cache/pkg/source"
)

// Config holds every tunable of the cache proxy. All fields have working
// defaults except the catalog base URL, which must point at a real backend.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	// RemoteCacheEnabled toggles the Redis tier. Disabled, the proxy runs
	// on the local store plus sources alone.
	RemoteCacheEnabled bool          `env:"REMOTE_CACHE_ENABLED" envDefault:"true"`
	RedisOpTimeout     time.Duration `env:"REDIS_OP_TIMEOUT" envDefault:"500ms"`

	CatalogURL        string        `env:"CATALOG_URL,required"`
	CatalogTimeout    time.Duration `env:"CATALOG_TIMEOUT" envDefault:"5s"`
	CatalogBatchSize  int           `env:"CATALOG_BATCH_SIZE" envDefault:"50"`
	CatalogMaxRetries int           `env:"CATALOG_MAX_RETRIES" envDefault:"3"`

	// SecondaryURL optionally points at a fallback catalog consulted when
	// the primary fails. Empty disables the secondary tier.
	SecondaryURL string `env:"SECONDARY_CATALOG_URL"`

	LocalMaxEntries    int           `env:"LOCAL_MAX_ENTRIES" envDefault:"10000"`
	LocalSweepInterval time.Duration `env:"LOCAL_SWEEP_INTERVAL" envDefault:"1m"`

	DefaultTTL       time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"24h"`
	NegativeTTL      time.Duration `env:"CACHE_NEGATIVE_TTL" envDefault:"5m"`
	SynthesizedTTL   time.Duration `env:"CACHE_SYNTHESIZED_TTL" envDefault:"45s"`
	FetchConcurrency int           `env:"FETCH_CONCURRENCY" envDefault:"8"`
	KeyPrefix        string        `env:"CACHE_KEY_PREFIX" envDefault:"product:"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the downstream constructors would also reject,
// so misconfiguration fails at startup instead of on the first request.
func (c Config) Validate() error {
	if c.CatalogURL == "" {
		return fmt.Errorf("CATALOG_URL is required")
	}
	if c.DefaultTTL <= 0 || c.NegativeTTL <= 0 || c.SynthesizedTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	if c.RemoteCacheEnabled && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when the remote cache is enabled")
	}
	return nil
}

// RegistryOptions maps the flat environment config onto the registry's
// per-component options.
func (c Config) RegistryOptions() registry.Options {
	primary := source.DefaultConfig(c.CatalogURL)
	primary.Timeout = c.CatalogTimeout
	primary.BatchSize = c.CatalogBatchSize
	primary.MaxRetries = c.CatalogMaxRetries

	var secondary *source.Config
	if c.SecondaryURL != "" {
		cfg := source.DefaultConfig(c.SecondaryURL)
		cfg.Timeout = c.CatalogTimeout
		cfg.BatchSize = c.CatalogBatchSize
		cfg.MaxRetries = c.CatalogMaxRetries
		secondary = &cfg
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.DefaultTTL = c.DefaultTTL
	engineCfg.NegativeTTL = c.NegativeTTL
	engineCfg.SynthesizedTTL = c.SynthesizedTTL
	engineCfg.FetchConcurrency = c.FetchConcurrency
	engineCfg.EnableRemoteCache = c.RemoteCacheEnabled
	engineCfg.KeyPrefix = c.KeyPrefix

	return registry.Options{
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		Source:        primary,
		Secondary:     secondary,
		LocalCache: localcache.Config{
			MaxEntries:    c.LocalMaxEntries,
			SweepInterval: c.LocalSweepInterval,
		},
		RemoteCache: remotecache.Config{OpTimeout: c.RedisOpTimeout},
		Engine:      engineCfg,
	}
}
