// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Release  ReleaseConfig
	Units    UnitsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps the size of a release request body (default: 1MB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"1048576"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// RedisConfig holds settings for the distributed order lock.
// When URL is empty an in-process lock is used, which is only correct
// with a single server instance.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`

	// LockExpiry is how long a lock survives a crashed holder (default: 10s).
	// Must exceed RELEASE_TIMEOUT.
	LockExpiry time.Duration `env:"REDIS_LOCK_EXPIRY" default:"10s"`

	// LockRefresh is how often a held lock is extended (default: 3s)
	LockRefresh time.Duration `env:"REDIS_LOCK_REFRESH" default:"3s"`

	// LockTries is the number of acquisition attempts (default: 20)
	LockTries int `env:"REDIS_LOCK_TRIES" default:"20"`

	// LockRetryDelay is the pause between attempts (default: 100ms)
	LockRetryDelay time.Duration `env:"REDIS_LOCK_RETRY_DELAY" default:"100ms"`
}

// Enabled reports whether a Redis URL is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// ReleaseConfig holds release processing settings.
type ReleaseConfig struct {
	// MaxConcurrent is the maximum number of releases processed at once (default: 10)
	MaxConcurrent int `env:"RELEASE_MAX_CONCURRENT" default:"10"`

	// MaxWaitTime is how long to wait for a release slot (default: 10s)
	MaxWaitTime time.Duration `env:"RELEASE_MAX_WAIT_TIME" default:"10s"`

	// Timeout bounds a single release end to end (default: 8s)
	Timeout time.Duration `env:"RELEASE_TIMEOUT" default:"8s"`

	// HistoryLimit is the default page size for the release log (default: 50)
	HistoryLimit int `env:"RELEASE_HISTORY_LIMIT" default:"50"`
}

// UnitsConfig maps blanket-order unit labels to sales-order unit codes.
type UnitsConfig struct {
	// Mapping is label=code pairs separated by commas.
	Mapping map[string]string `env:"UNIT_CODES" default:"Gallon=11,MT=12,Pound=10,Pounds Solids=13"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ReleaseLimit is requests per minute for the release endpoint (default: 20)
	ReleaseLimit int `env:"RATE_LIMIT_RELEASE" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
