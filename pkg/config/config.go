// Package config loads pipeline configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Index access modes.
const (
	IndexModeSnapshot  = "snapshot"
	IndexModePaginated = "paginated"
)

// ErrMissingAPIToken is returned when TMDB_API_TOKEN is not set. Without the
// credential no partial run is attempted.
var ErrMissingAPIToken = errors.New("TMDB_API_TOKEN environment variable not set")

// Config holds the full pipeline configuration.
type Config struct {
	// Upstream API
	APIToken string
	BaseURL  string

	// Local artifacts
	CacheDir  string
	StateFile string

	// Run behavior
	MaxRuntime time.Duration
	RateLimit  int
	RateWindow time.Duration
	BatchSize  int

	// Index source
	IndexMode   string
	IndexOwner  string
	IndexRepo   string
	IndexRef    string
	IndexPrefix string
	IndexSuffix string
	IndexDelay  time.Duration

	// Optional services
	RedisURL    string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads configuration from the environment, applying defaults for
// everything except the API token.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	v.SetDefault("CACHE_DIR", "docs")
	v.SetDefault("STATE_FILE", "cache_state.txt")
	v.SetDefault("MAX_RUNTIME", "10m")
	v.SetDefault("RATE_LIMIT", 50)
	v.SetDefault("RATE_WINDOW", "1s")
	v.SetDefault("BATCH_SIZE", 100)
	v.SetDefault("INDEX_MODE", IndexModeSnapshot)
	v.SetDefault("INDEX_OWNER", "12v")
	v.SetDefault("INDEX_REPO", "lbc")
	v.SetDefault("INDEX_REF", "main")
	v.SetDefault("INDEX_PREFIX", "docs/")
	v.SetDefault("INDEX_SUFFIX", ".txt")
	v.SetDefault("INDEX_DELAY", "100ms")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	cfg := &Config{
		APIToken:    v.GetString("TMDB_API_TOKEN"),
		BaseURL:     v.GetString("TMDB_BASE_URL"),
		CacheDir:    v.GetString("CACHE_DIR"),
		StateFile:   v.GetString("STATE_FILE"),
		MaxRuntime:  v.GetDuration("MAX_RUNTIME"),
		RateLimit:   v.GetInt("RATE_LIMIT"),
		RateWindow:  v.GetDuration("RATE_WINDOW"),
		BatchSize:   v.GetInt("BATCH_SIZE"),
		IndexMode:   v.GetString("INDEX_MODE"),
		IndexOwner:  v.GetString("INDEX_OWNER"),
		IndexRepo:   v.GetString("INDEX_REPO"),
		IndexRef:    v.GetString("INDEX_REF"),
		IndexPrefix: v.GetString("INDEX_PREFIX"),
		IndexSuffix: v.GetString("INDEX_SUFFIX"),
		IndexDelay:  v.GetDuration("INDEX_DELAY"),
		RedisURL:    v.GetString("REDIS_URL"),
		MetricsAddr: v.GetString("METRICS_ADDR"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogPretty:   v.GetBool("LOG_PRETTY"),
	}

	if cfg.APIToken == "" {
		return nil, ErrMissingAPIToken
	}

	if cfg.IndexMode != IndexModeSnapshot && cfg.IndexMode != IndexModePaginated {
		return nil, fmt.Errorf("INDEX_MODE must be %q or %q (got %q)",
			IndexModeSnapshot, IndexModePaginated, cfg.IndexMode)
	}

	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT must be positive (got %d)", cfg.RateLimit)
	}

	if cfg.RateWindow <= 0 {
		return nil, fmt.Errorf("RATE_WINDOW must be positive (got %s)", cfg.RateWindow)
	}

	return cfg, nil
}
