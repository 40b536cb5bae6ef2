// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/toolgate/domain/ratelimit"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/domain/tool"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Database  DatabaseConfig        `yaml:"database"`
	Quota     QuotaConfig           `yaml:"quota"`
	Store     StoreConfig           `yaml:"store"`
	RateLimit RateLimitConfig       `yaml:"rate_limit"`
	Tiers     map[string]TierConfig `yaml:"tiers"`
	Sandbox   SandboxConfig         `yaml:"sandbox"`
	Usage     UsageConfig           `yaml:"usage"`
	Webhooks  WebhooksConfig        `yaml:"webhooks"`
	Admin     AdminConfig           `yaml:"admin"`
	Auth      AuthConfig            `yaml:"auth"`
	Logging   LoggingConfig         `yaml:"logging"`
	Metrics   MetricsConfig         `yaml:"metrics"`
	OpenAPI   OpenAPIConfig         `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxyHeaders takes client addresses from X-Forwarded-For.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DatabaseConfig configures the store holding keys, tools, webhooks and
// usage records. The memory driver keeps nothing across restarts.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// Quota backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// QuotaConfig selects and configures the shared counter store.
type QuotaConfig struct {
	Backend         string        `yaml:"backend"` // "memory", "sqlite" or "redis"
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Redis           RedisConfig   `yaml:"redis"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// RedisConfig configures the redis quota backend.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password,omitempty"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BreakerConfig configures the circuit breaker in front of the quota store.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxFailures      uint32        `yaml:"max_failures"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenRequests uint32        `yaml:"half_open_requests"`
}

// StoreConfig bounds store calls made on the request path.
type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig configures quota enforcement.
type RateLimitConfig struct {
	// FailOpen admits requests when the quota store is unavailable.
	FailOpen bool `yaml:"fail_open"`
}

// TierConfig overrides one tier's policy.
type TierConfig struct {
	Limit      *TierLimit `yaml:"limit"`
	Window     string     `yaml:"window"`
	FullAccess *bool      `yaml:"full_access"`
	Features   *[]string  `yaml:"features"`
}

// TierLimit is a request limit: a non-negative integer or "unlimited".
type TierLimit struct {
	ratelimit.Limit
}

// UnmarshalYAML accepts an integer or the string "unlimited".
func (l *TierLimit) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: limit must be a number or \"unlimited\"", value.Line)
	}
	if strings.EqualFold(value.Value, "unlimited") {
		l.Limit = ratelimit.Unbounded()
		return nil
	}
	n, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("line %d: limit must be a non-negative number or \"unlimited\", got %q", value.Line, value.Value)
	}
	l.Limit = ratelimit.Bounded(n)
	return nil
}

// SandboxConfig configures anonymous per-IP access.
type SandboxConfig struct {
	Limit  int64    `yaml:"limit"`
	Window string   `yaml:"window"`
	Tools  []string `yaml:"tools"`
}

// UsageConfig configures the asynchronous usage recorder.
type UsageConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// WebhooksConfig configures webhook registration bookkeeping.
type WebhooksConfig struct {
	MaxPerOwner int `yaml:"max_per_owner"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	Secret string `yaml:"secret,omitempty"` // empty disables the admin API
	// FailureRate and FailureBurst bound failed admin logins per second.
	FailureRate  float64 `yaml:"failure_rate"`
	FailureBurst int     `yaml:"failure_burst"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	KeyPrefix  string `yaml:"key_prefix"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /metrics endpoint
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /swagger/*
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, then applies environment overrides,
// defaults and validation.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for container deployments where no config file is needed.
//
// Environment variables:
//
//	TOOLGATE_SERVER_HOST         - Server host (default: 0.0.0.0)
//	TOOLGATE_SERVER_PORT         - Server port (default: 8080)
//	TOOLGATE_DATABASE_DRIVER     - sqlite or memory (default: sqlite)
//	TOOLGATE_DATABASE_DSN        - SQLite path (default: toolgate.db)
//	TOOLGATE_QUOTA_BACKEND       - memory, sqlite or redis (default: sqlite)
//	TOOLGATE_REDIS_ADDR          - Redis address for the redis backend
//	TOOLGATE_REDIS_PASSWORD      - Redis password
//	TOOLGATE_STORE_TIMEOUT       - Store call timeout (default: 2s)
//	TOOLGATE_RATE_LIMIT_FAIL_OPEN - Admit on quota store failure (default: false)
//	TOOLGATE_SANDBOX_LIMIT       - Sandbox requests per window (default: 10)
//	TOOLGATE_ADMIN_SECRET        - Admin API secret (empty disables it)
//	TOOLGATE_AUTH_KEY_PREFIX     - API key prefix (default: tk_)
//	TOOLGATE_LOG_LEVEL           - debug, info, warn, error (default: info)
//	TOOLGATE_LOG_FORMAT          - json or console (default: json)
//	TOOLGATE_METRICS_ENABLED     - Enable /metrics (default: false)
//	TOOLGATE_OPENAPI_ENABLED     - Enable /swagger (default: false)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path when it exists and falls back to
// environment-only configuration otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies TOOLGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("TOOLGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TOOLGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TOOLGATE_SERVER_TRUST_PROXY_HEADERS"); v != "" {
		cfg.Server.TrustProxyHeaders = parseBool(v)
	}

	// Storage configuration
	if v := os.Getenv("TOOLGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TOOLGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TOOLGATE_QUOTA_BACKEND"); v != "" {
		cfg.Quota.Backend = v
	}
	if v := os.Getenv("TOOLGATE_REDIS_ADDR"); v != "" {
		cfg.Quota.Redis.Addr = v
	}
	if v := os.Getenv("TOOLGATE_REDIS_PASSWORD"); v != "" {
		cfg.Quota.Redis.Password = v
	}
	if v := os.Getenv("TOOLGATE_STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.Timeout = d
		}
	}

	// Admission configuration
	if v := os.Getenv("TOOLGATE_RATE_LIMIT_FAIL_OPEN"); v != "" {
		cfg.RateLimit.FailOpen = parseBool(v)
	}
	if v := os.Getenv("TOOLGATE_SANDBOX_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sandbox.Limit = n
		}
	}
	if v := os.Getenv("TOOLGATE_ADMIN_SECRET"); v != "" {
		cfg.Admin.Secret = v
	}
	if v := os.Getenv("TOOLGATE_AUTH_KEY_PREFIX"); v != "" {
		cfg.Auth.KeyPrefix = v
	}

	// Logging configuration
	if v := os.Getenv("TOOLGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TOOLGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics and docs
	if v := os.Getenv("TOOLGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TOOLGATE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "toolgate.db"
	}

	if cfg.Quota.Backend == "" {
		if cfg.Database.Driver == DriverMemory {
			cfg.Quota.Backend = BackendMemory
		} else {
			cfg.Quota.Backend = BackendSQLite
		}
	}
	if cfg.Quota.CleanupInterval == 0 {
		cfg.Quota.CleanupInterval = 10 * time.Minute
	}
	if cfg.Quota.Redis.Prefix == "" {
		cfg.Quota.Redis.Prefix = "toolgate:quota:"
	}
	if cfg.Quota.Redis.DialTimeout == 0 {
		cfg.Quota.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Quota.Breaker.MaxFailures == 0 {
		cfg.Quota.Breaker.MaxFailures = 5
	}
	if cfg.Quota.Breaker.OpenTimeout == 0 {
		cfg.Quota.Breaker.OpenTimeout = 30 * time.Second
	}
	if cfg.Quota.Breaker.HalfOpenRequests == 0 {
		cfg.Quota.Breaker.HalfOpenRequests = 1
	}

	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = 2 * time.Second
	}

	if cfg.Sandbox.Limit == 0 {
		cfg.Sandbox.Limit = 10
	}
	if cfg.Sandbox.Window == "" {
		cfg.Sandbox.Window = "day"
	}
	if len(cfg.Sandbox.Tools) == 0 {
		cfg.Sandbox.Tools = append([]string(nil), tool.DefaultSandboxTools...)
	}

	if cfg.Usage.QueueSize == 0 {
		cfg.Usage.QueueSize = 10000
	}
	if cfg.Usage.BatchSize == 0 {
		cfg.Usage.BatchSize = 100
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 5 * time.Second
	}
	if cfg.Usage.WriteTimeout == 0 {
		cfg.Usage.WriteTimeout = 5 * time.Second
	}

	if cfg.Webhooks.MaxPerOwner == 0 {
		cfg.Webhooks.MaxPerOwner = 10
	}

	if cfg.Admin.FailureRate == 0 {
		cfg.Admin.FailureRate = 1
	}
	if cfg.Admin.FailureBurst == 0 {
		cfg.Admin.FailureBurst = 5
	}

	if cfg.Auth.KeyPrefix == "" {
		cfg.Auth.KeyPrefix = "tk_"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Database.Driver != DriverSQLite && cfg.Database.Driver != DriverMemory {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	validBackends := map[string]bool{BackendMemory: true, BackendSQLite: true, BackendRedis: true}
	if !validBackends[cfg.Quota.Backend] {
		return fmt.Errorf("quota.backend must be one of: memory, sqlite, redis, got %q", cfg.Quota.Backend)
	}
	if cfg.Quota.Backend == BackendRedis && cfg.Quota.Redis.Addr == "" {
		return fmt.Errorf("quota.redis.addr is required when quota.backend is 'redis'")
	}
	if cfg.Quota.Backend == BackendSQLite && cfg.Database.Driver != DriverSQLite {
		return fmt.Errorf("quota.backend 'sqlite' requires database.driver 'sqlite'")
	}

	if cfg.Store.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}

	if _, err := cfg.TierTable(); err != nil {
		return err
	}

	if cfg.Usage.QueueSize < 0 || cfg.Usage.BatchSize < 0 {
		return fmt.Errorf("usage.queue_size and usage.batch_size must not be negative")
	}
	if cfg.Webhooks.MaxPerOwner < 0 {
		return fmt.Errorf("webhooks.max_per_owner must not be negative")
	}
	if cfg.Admin.FailureRate < 0 || cfg.Admin.FailureBurst < 0 {
		return fmt.Errorf("admin.failure_rate and admin.failure_burst must not be negative")
	}

	if cfg.Auth.BcryptCost != 0 && (cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", cfg.Auth.BcryptCost)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

// TierTable builds the tier policy table: built-in defaults overridden by
// the tiers and sandbox sections.
func (c *Config) TierTable() (*tier.Table, error) {
	policies := tier.DefaultPolicies()
	index := make(map[tier.Tier]int, len(policies))
	for i, p := range policies {
		index[p.Tier] = i
	}

	for name, tc := range c.Tiers {
		t, err := tier.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("tiers.%s: %w", name, err)
		}
		p := &policies[index[t]]
		if tc.Limit != nil {
			p.Limit = tc.Limit.Limit
		}
		if tc.Window != "" {
			w, err := ratelimit.ParseWindow(tc.Window)
			if err != nil {
				return nil, fmt.Errorf("tiers.%s.window: %w", name, err)
			}
			p.Window = w
		}
		if tc.FullAccess != nil {
			p.FullAccess = *tc.FullAccess
		}
		if tc.Features != nil {
			features := make([]tier.Feature, 0, len(*tc.Features))
			for _, s := range *tc.Features {
				f, err := tier.ParseFeature(s)
				if err != nil {
					return nil, fmt.Errorf("tiers.%s.features: %w", name, err)
				}
				features = append(features, f)
			}
			p.Features = features
		}
	}

	sandbox := &policies[index[tier.Sandbox]]
	if c.Sandbox.Limit < 0 {
		return nil, fmt.Errorf("sandbox.limit must not be negative")
	}
	if c.Sandbox.Limit > 0 {
		sandbox.Limit = ratelimit.Bounded(c.Sandbox.Limit)
	}
	if c.Sandbox.Window != "" {
		w, err := ratelimit.ParseWindow(c.Sandbox.Window)
		if err != nil {
			return nil, fmt.Errorf("sandbox.window: %w", err)
		}
		sandbox.Window = w
	}

	return tier.NewTable(policies...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
