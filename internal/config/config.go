// Package config loads the daemon configuration from PARADIGM_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBolt   = "bolt"
)

// Config is the daemon configuration.
type Config struct {
	// Origin is the public application origin the cache is keyed by.
	Origin string `env:"PARADIGM_ORIGIN" envDefault:"http://localhost:8080"`

	// Upstream is where requests are actually sent; defaults to Origin.
	Upstream string `env:"PARADIGM_UPSTREAM"`

	ListenAddr string `env:"PARADIGM_LISTEN_ADDR" envDefault:":8080"`
	Version    string `env:"PARADIGM_VERSION" envDefault:"v1"`

	// ManifestPath points to a YAML/JSON precache manifest; the built-in list is used when empty.
	ManifestPath string `env:"PARADIGM_MANIFEST"`

	Store         string `env:"PARADIGM_STORE" envDefault:"memory"`
	RedisAddr     string `env:"PARADIGM_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB       int    `env:"PARADIGM_REDIS_DB" envDefault:"0"`
	RedisPassword string `env:"PARADIGM_REDIS_PASSWORD"`
	BoltPath      string `env:"PARADIGM_BOLT_PATH" envDefault:"paradigm-cache.db"`

	// OutboxPath is the SQLite file of unsent attendance records.
	OutboxPath string `env:"PARADIGM_OUTBOX_PATH" envDefault:"paradigm-outbox.db"`

	VAPIDPublicKey string `env:"PARADIGM_VAPID_PUBLIC_KEY"`
	VAPIDAudience  string `env:"PARADIGM_VAPID_AUDIENCE"`

	LogLevel  string `env:"PARADIGM_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"PARADIGM_LOG_PRETTY" envDefault:"false"`

	PrecacheConcurrency int           `env:"PARADIGM_PRECACHE_CONCURRENCY" envDefault:"4"`
	PrecacheTimeout     time.Duration `env:"PARADIGM_PRECACHE_TIMEOUT" envDefault:"15s"`
	InstallAttempts     int           `env:"PARADIGM_INSTALL_ATTEMPTS" envDefault:"3"`
	FailureThreshold    int           `env:"PARADIGM_OFFLINE_AFTER_FAILURES" envDefault:"2"`
	ShutdownTimeout     time.Duration `env:"PARADIGM_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the result.
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

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if _, err := parseAbsolute("origin", c.Origin); err != nil {
		return err
	}
	if c.Upstream != "" {
		if _, err := parseAbsolute("upstream", c.Upstream); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis store")
		}
	case StoreBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt path is required for the bolt store")
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, redis or bolt)", c.Store)
	}

	if c.PrecacheConcurrency < 1 {
		return fmt.Errorf("precache concurrency must be >= 1 (got %d)", c.PrecacheConcurrency)
	}
	if c.InstallAttempts < 1 {
		return fmt.Errorf("install attempts must be >= 1 (got %d)", c.InstallAttempts)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("offline failure threshold must be >= 1 (got %d)", c.FailureThreshold)
	}
	return nil
}

// OriginURL returns the parsed origin.
func (c Config) OriginURL() *url.URL {
	u, _ := parseAbsolute("origin", c.Origin)
	return u
}

// UpstreamURL returns the parsed upstream, falling back to the origin.
func (c Config) UpstreamURL() *url.URL {
	if c.Upstream == "" {
		return c.OriginURL()
	}
	u, _ := parseAbsolute("upstream", c.Upstream)
	return u
}

func parseAbsolute(name, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return u, nil
}
