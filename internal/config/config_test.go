package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CATALOG_URL", "http://catalog.local/api")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DefaultTTL != 24*time.Hour {
		t.Errorf("DefaultTTL = %v, want 24h", cfg.DefaultTTL)
	}
	if cfg.NegativeTTL != 5*time.Minute {
		t.Errorf("NegativeTTL = %v, want 5m", cfg.NegativeTTL)
	}
	if cfg.SynthesizedTTL != 45*time.Second {
		t.Errorf("SynthesizedTTL = %v, want 45s", cfg.SynthesizedTTL)
	}
	if cfg.FetchConcurrency != 8 {
		t.Errorf("FetchConcurrency = %d, want 8", cfg.FetchConcurrency)
	}
	if !cfg.RemoteCacheEnabled {
		t.Error("RemoteCacheEnabled should default to true")
	}
}

func TestLoad_MissingCatalogURL(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Error("Load should fail without CATALOG_URL")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CATALOG_URL", "http://catalog.local/api")
	t.Setenv("CACHE_DEFAULT_TTL", "1h")
	t.Setenv("FETCH_CONCURRENCY", "16")
	t.Setenv("REMOTE_CACHE_ENABLED", "false")
	t.Setenv("SECONDARY_CATALOG_URL", "http://backup.local/api")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultTTL != time.Hour {
		t.Errorf("DefaultTTL = %v, want 1h", cfg.DefaultTTL)
	}
	if cfg.FetchConcurrency != 16 {
		t.Errorf("FetchConcurrency = %d, want 16", cfg.FetchConcurrency)
	}
	if cfg.RemoteCacheEnabled {
		t.Error("RemoteCacheEnabled should be false")
	}

	opts := cfg.RegistryOptions()
	if opts.Secondary == nil {
		t.Fatal("Secondary should be configured")
	}
	if opts.Secondary.BaseURL != "http://backup.local/api" {
		t.Errorf("Secondary.BaseURL = %q", opts.Secondary.BaseURL)
	}
	if opts.Engine.EnableRemoteCache {
		t.Error("Engine.EnableRemoteCache should be false")
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := func() Config {
		return Config{
			CatalogURL:       "http://catalog.local",
			DefaultTTL:       time.Hour,
			NegativeTTL:      time.Minute,
			SynthesizedTTL:   30 * time.Second,
			FetchConcurrency: 4,
			RedisAddr:        "localhost:6379",
		}
	}

	cfg := base()
	cfg.NegativeTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject zero NegativeTTL")
	}

	cfg = base()
	cfg.FetchConcurrency = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject negative FetchConcurrency")
	}

	cfg = base()
	cfg.RemoteCacheEnabled = true
	cfg.RedisAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject enabled remote cache without address")
	}
}
