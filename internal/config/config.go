// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start.
type Config struct {
	Port        string
	DatabaseURL string // empty → in-memory store
	RedisURL    string // empty → no cache layer
	TokenSecret string
	CacheTTL    time.Duration

	// Purchase limits; zero disables the corresponding check.
	MaxPerAnnouncement int64
	MaxPerItem         int64
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment")
	}

	return Config{
		Port:               getenv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		TokenSecret:        getenv("TOKEN_SECRET", "dev-secret-do-not-use"),
		CacheTTL:           getdur("CACHE_TTL", 30*time.Second),
		MaxPerAnnouncement: getint("MAX_PER_ANNOUNCEMENT", 0),
		MaxPerItem:         getint("MAX_PER_ITEM", 0),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration, using fallback", "key", key)
	}
	return fallback
}

func getint(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		slog.Warn("invalid integer, using fallback", "key", key)
	}
	return fallback
}
