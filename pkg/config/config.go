// Package config defines the feedgate configuration and loads it from a
// TOML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Cache backend identifiers.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds the full feedgate configuration.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `toml:"listen_addr"`

	// CacheBackend selects the cache store: "memory", "redis" or "sqlite".
	CacheBackend string `toml:"cache_backend"`

	// RedisAddr is the Redis address when CacheBackend is "redis".
	RedisAddr string `toml:"redis_addr"`

	// SQLitePath is the database file when CacheBackend is "sqlite".
	SQLitePath string `toml:"sqlite_path"`

	// CacheTTLSeconds is how long a generated feed body stays fresh.
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`

	// CompressionEnabled turns gzip response compression on or off.
	CompressionEnabled bool `toml:"compression_enabled"`

	// CompressionMinBytes is the minimum uncompressed body size worth
	// compressing. Smaller bodies are always served identity-encoded.
	CompressionMinBytes int `toml:"compression_min_bytes"`

	// MaxItemsPerFeed caps the item count of any generated feed.
	MaxItemsPerFeed int `toml:"max_items_per_feed"`

	// GenerationTimeoutSeconds bounds a single content generation.
	GenerationTimeoutSeconds int `toml:"generation_timeout_seconds"`

	// WarmConcurrency is the worker count for cache warming.
	WarmConcurrency int `toml:"warm_concurrency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// LogPretty enables human-readable console logs instead of JSON.
	LogPretty bool `toml:"log_pretty"`

	// DefaultPostTypes are the content types of the default feed.
	DefaultPostTypes []string `toml:"default_post_types"`

	// Site is the channel-level metadata of generated feeds.
	Site SiteConfig `toml:"site"`

	// Routes are custom feed routes seeded at startup.
	Routes []RouteConfig `toml:"routes"`

	// Redirects are redirect rules seeded at startup.
	Redirects []RedirectConfig `toml:"redirects"`
}

// SiteConfig is the channel-level metadata of generated feeds.
type SiteConfig struct {
	Title       string `toml:"title"`
	Link        string `toml:"link"`
	Description string `toml:"description"`
	Author      string `toml:"author"`
}

// RouteConfig is the TOML shape of a custom feed route.
type RouteConfig struct {
	Slug           string   `toml:"slug"`
	Title          string   `toml:"title"`
	Description    string   `toml:"description"`
	PostTypes      []string `toml:"post_types"`
	ItemLimit      int      `toml:"item_limit"`
	OrderBy        string   `toml:"order_by"`
	OrderDirection string   `toml:"order_direction"`
	Enabled        bool     `toml:"enabled"`
}

// RedirectConfig is the TOML shape of a redirect rule.
type RedirectConfig struct {
	FromPath   string `toml:"from_path"`
	ToPath     string `toml:"to_path"`
	StatusCode int    `toml:"status_code"`
	Enabled    bool   `toml:"enabled"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ListenAddr:               ":8080",
		CacheBackend:             BackendMemory,
		RedisAddr:                "localhost:6379",
		SQLitePath:               "./feedgate.db",
		CacheTTLSeconds:          3600,
		CompressionEnabled:       true,
		CompressionMinBytes:      1024,
		MaxItemsPerFeed:          50,
		GenerationTimeoutSeconds: 10,
		WarmConcurrency:          4,
		LogLevel:                 "info",
		DefaultPostTypes:         []string{"post"},
		Site: SiteConfig{
			Title:       "Feedgate",
			Link:        "http://localhost:8080",
			Description: "Feeds served by feedgate",
		},
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. An empty path skips the file and uses defaults
// plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values with FEEDGATE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("FEEDGATE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("FEEDGATE_CACHE_BACKEND"); v != "" {
		c.CacheBackend = v
	}
	if v := os.Getenv("FEEDGATE_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("FEEDGATE_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("FEEDGATE_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("FEEDGATE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("unknown cache_backend %q", c.CacheBackend)
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl_seconds must be positive (got %d)", c.CacheTTLSeconds)
	}
	if c.CompressionMinBytes < 0 {
		return fmt.Errorf("compression_min_bytes must not be negative (got %d)", c.CompressionMinBytes)
	}
	if c.MaxItemsPerFeed <= 0 {
		return fmt.Errorf("max_items_per_feed must be positive (got %d)", c.MaxItemsPerFeed)
	}
	if c.GenerationTimeoutSeconds <= 0 {
		return fmt.Errorf("generation_timeout_seconds must be positive (got %d)", c.GenerationTimeoutSeconds)
	}
	if c.WarmConcurrency <= 0 {
		return fmt.Errorf("warm_concurrency must be positive (got %d)", c.WarmConcurrency)
	}
	return nil
}

// CacheTTL returns the configured TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// GenerationTimeout returns the generation timeout as a duration.
func (c Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}
