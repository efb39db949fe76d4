package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "TOKEN_SECRET", "CACHE_TTL", "MAX_PER_ANNOUNCEMENT", "MAX_PER_ITEM"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("default port should be 8080, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("default database url should be empty, got %s", cfg.DatabaseURL)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("default cache ttl should be 30s, got %s", cfg.CacheTTL)
	}
	if cfg.MaxPerAnnouncement != 0 || cfg.MaxPerItem != 0 {
		t.Errorf("purchase limits default to disabled, got %d/%d", cfg.MaxPerAnnouncement, cfg.MaxPerItem)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/ghe")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("MAX_PER_ANNOUNCEMENT", "25")
	t.Setenv("MAX_PER_ITEM", "100")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://localhost/ghe" {
		t.Errorf("unexpected database url: %s", cfg.DatabaseURL)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected 5m cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.MaxPerAnnouncement != 25 || cfg.MaxPerItem != 100 {
		t.Errorf("unexpected limits: %d/%d", cfg.MaxPerAnnouncement, cfg.MaxPerItem)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("MAX_PER_ITEM", "many")

	cfg := Load()
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("invalid duration should fall back to 30s, got %s", cfg.CacheTTL)
	}
	if cfg.MaxPerItem != 0 {
		t.Errorf("invalid integer should fall back to 0, got %d", cfg.MaxPerItem)
	}
}
