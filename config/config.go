package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSessionSecretLength is the minimum length of SESSION_SECRET when editor auth is on.
const MinSessionSecretLength = 32

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath   string `env:"SQLITE_DB" envDefault:"./data/stavweb.db"`
	AuditDB  string `env:"AUDIT_DB"`
	Port     int    `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"release"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Reverse proxies (IPs or CIDRs) whose forwarding headers are believed.
	// Empty trusts none and the peer address is the client IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Editor authentication. Empty hash leaves the API open.
	SessionSecret      string `env:"SESSION_SECRET"`
	EditorPasswordHash string `env:"EDITOR_PASSWORD_HASH"`

	// Audit events older than this are pruned nightly; 0 keeps them forever.
	AuditRetention time.Duration `env:"AUDIT_RETENTION" envDefault:"2160h"`

	// Failed login attempts allowed per client IP per minute.
	LoginAttemptsPerMinute int `env:"LOGIN_ATTEMPTS_PER_MINUTE" envDefault:"5"`

	// Response cache
	RedisURL    string        `env:"REDIS_URL"`
	CachePrefix string        `env:"CACHE_PREFIX" envDefault:"stavweb:"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"60s"`
}

// AuthEnabled returns true if an editor password hash is configured.
func (c Config) AuthEnabled() bool {
	return c.EditorPasswordHash != ""
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// Proxies returns TRUSTED_PROXIES without blank entries.
func (c Config) Proxies() []string {
	var proxies []string
	for _, p := range c.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthEnabled() && len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes long when EDITOR_PASSWORD_HASH is set, got %d bytes",
			MinSessionSecretLength, len(c.SessionSecret))
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	if c.AuditRetention < 0 {
		return fmt.Errorf("AUDIT_RETENTION must not be negative")
	}
	if c.LoginAttemptsPerMinute < 1 {
		return fmt.Errorf("LOGIN_ATTEMPTS_PER_MINUTE must be at least 1")
	}
	return nil
}
