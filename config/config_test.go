package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/toolgate/config"
	"github.com/artpar/toolgate/domain/ratelimit"
	"github.com/artpar/toolgate/domain/tier"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  trust_proxy_headers: true

database:
  driver: memory

quota:
  backend: redis
  redis:
    addr: "localhost:6380"
    db: 2
  breaker:
    enabled: true
    max_failures: 3
    open_timeout: 15s

auth:
  key_prefix: "test_"

admin:
  secret: "hunter2"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Server.TrustProxyHeaders {
		t.Error("TrustProxyHeaders = false, want true")
	}
	if cfg.Database.Driver != config.DriverMemory {
		t.Errorf("Database.Driver = %s, want memory", cfg.Database.Driver)
	}
	if cfg.Quota.Backend != config.BackendRedis {
		t.Errorf("Quota.Backend = %s, want redis", cfg.Quota.Backend)
	}
	if cfg.Quota.Redis.Addr != "localhost:6380" || cfg.Quota.Redis.DB != 2 {
		t.Errorf("Quota.Redis = %+v", cfg.Quota.Redis)
	}
	if !cfg.Quota.Breaker.Enabled || cfg.Quota.Breaker.MaxFailures != 3 || cfg.Quota.Breaker.OpenTimeout != 15*time.Second {
		t.Errorf("Quota.Breaker = %+v", cfg.Quota.Breaker)
	}
	if cfg.Auth.KeyPrefix != "test_" {
		t.Errorf("Auth.KeyPrefix = %s, want test_", cfg.Auth.KeyPrefix)
	}
	if cfg.Admin.Secret != "hunter2" {
		t.Errorf("Admin.Secret = %s, want hunter2", cfg.Admin.Secret)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr() = %s, want 127.0.0.1:9090", cfg.Addr())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != config.DriverSQLite {
		t.Errorf("default Driver = %s, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "toolgate.db" {
		t.Errorf("default DSN = %s, want toolgate.db", cfg.Database.DSN)
	}
	if cfg.Quota.Backend != config.BackendSQLite {
		t.Errorf("default Quota.Backend = %s, want sqlite", cfg.Quota.Backend)
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Errorf("default Store.Timeout = %v, want 2s", cfg.Store.Timeout)
	}
	if cfg.RateLimit.FailOpen {
		t.Error("default RateLimit.FailOpen = true, want false")
	}
	if cfg.Sandbox.Limit != 10 || cfg.Sandbox.Window != "day" {
		t.Errorf("default Sandbox = %d per %s, want 10 per day", cfg.Sandbox.Limit, cfg.Sandbox.Window)
	}
	if len(cfg.Sandbox.Tools) != 5 {
		t.Errorf("default Sandbox.Tools = %v, want 5 tools", cfg.Sandbox.Tools)
	}
	if cfg.Auth.KeyPrefix != "tk_" {
		t.Errorf("default KeyPrefix = %s, want tk_", cfg.Auth.KeyPrefix)
	}
	if cfg.Webhooks.MaxPerOwner != 10 {
		t.Errorf("default Webhooks.MaxPerOwner = %d, want 10", cfg.Webhooks.MaxPerOwner)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_ADMIN_SECRET", "from-env")

	cfg := writeAndLoad(t, `
admin:
  secret: "${TEST_ADMIN_SECRET}"
`)

	if cfg.Admin.Secret != "from-env" {
		t.Errorf("Admin.Secret = %s, want from-env", cfg.Admin.Secret)
	}
}

func TestTierTable_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	table, err := cfg.TierTable()
	if err != nil {
		t.Fatalf("TierTable error: %v", err)
	}

	tests := []struct {
		tier       tier.Tier
		limit      string
		fullAccess bool
		webhooks   bool
	}{
		{tier.Sandbox, "10", false, false},
		{tier.Free, "100", false, false},
		{tier.Professional, "10000", true, true},
		{tier.Enterprise, "unlimited", true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			p, ok := table.Lookup(tt.tier)
			if !ok {
				t.Fatalf("no policy for %s", tt.tier)
			}
			if p.Limit.String() != tt.limit {
				t.Errorf("Limit = %s, want %s", p.Limit, tt.limit)
			}
			if p.Window != ratelimit.Day() {
				t.Errorf("Window = %s, want day", p.Window)
			}
			if p.FullAccess != tt.fullAccess {
				t.Errorf("FullAccess = %v, want %v", p.FullAccess, tt.fullAccess)
			}
			if p.Allows(tier.FeatureWebhooks) != tt.webhooks {
				t.Errorf("Allows(webhooks) = %v, want %v", p.Allows(tier.FeatureWebhooks), tt.webhooks)
			}
		})
	}
}

func TestTierTable_Overrides(t *testing.T) {
	cfg := writeAndLoad(t, `
tiers:
  free:
    limit: 250
    window: 1h
    features: [changelog]
  professional:
    limit: unlimited
    full_access: false

sandbox:
  limit: 3
  window: month
`)

	table, err := cfg.TierTable()
	if err != nil {
		t.Fatalf("TierTable error: %v", err)
	}

	free, _ := table.Lookup(tier.Free)
	if n, ok := free.Limit.Max(); !ok || n != 250 {
		t.Errorf("free Limit = %s, want 250", free.Limit)
	}
	if free.Window != ratelimit.Fixed(time.Hour) {
		t.Errorf("free Window = %s, want 1h0m0s", free.Window)
	}
	if !free.Allows(tier.FeatureChangelog) || free.Allows(tier.FeatureWebhooks) {
		t.Errorf("free Features = %v, want [changelog]", free.Features)
	}

	pro, _ := table.Lookup(tier.Professional)
	if !pro.Limit.IsUnbounded() {
		t.Errorf("professional Limit = %s, want unlimited", pro.Limit)
	}
	if pro.FullAccess {
		t.Error("professional FullAccess = true, want false")
	}
	if !pro.Allows(tier.FeatureComparison) {
		t.Error("professional features should be untouched when not overridden")
	}

	sandbox, _ := table.Lookup(tier.Sandbox)
	if n, _ := sandbox.Limit.Max(); n != 3 {
		t.Errorf("sandbox Limit = %s, want 3", sandbox.Limit)
	}
	if sandbox.Window != ratelimit.Month() {
		t.Errorf("sandbox Window = %s, want month", sandbox.Window)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown quota backend",
			content: "quota:\n  backend: etcd\n",
			wantErr: "quota.backend",
		},
		{
			name:    "unknown database driver",
			content: "database:\n  driver: postgres\n",
			wantErr: "database.driver",
		},
		{
			name:    "sqlite counters without sqlite database",
			content: "database:\n  driver: memory\nquota:\n  backend: sqlite\n",
			wantErr: "requires database.driver",
		},
		{
			name:    "redis without address",
			content: "quota:\n  backend: redis\n",
			wantErr: "quota.redis.addr",
		},
		{
			name:    "unknown tier",
			content: "tiers:\n  platinum:\n    limit: 5\n",
			wantErr: "tiers.platinum",
		},
		{
			name:    "sandbox is not a key tier",
			content: "tiers:\n  sandbox:\n    limit: 5\n",
			wantErr: "tiers.sandbox",
		},
		{
			name:    "negative limit",
			content: "tiers:\n  free:\n    limit: -1\n",
			wantErr: "non-negative",
		},
		{
			name:    "word limit",
			content: "tiers:\n  free:\n    limit: lots\n",
			wantErr: "unlimited",
		},
		{
			name:    "unknown feature",
			content: "tiers:\n  free:\n    features: [teleport]\n",
			wantErr: "unknown feature",
		},
		{
			name:    "bad window",
			content: "tiers:\n  free:\n    window: fortnight\n",
			wantErr: "tiers.free.window",
		},
		{
			name:    "bad sandbox window",
			content: "sandbox:\n  window: 10ms\n",
			wantErr: "sandbox.window",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "bad bcrypt cost",
			content: "auth:\n  bcrypt_cost: 2\n",
			wantErr: "auth.bcrypt_cost",
		},
		{
			name:    "port out of range",
			content: "server:\n  port: 70000\n",
			wantErr: "server.port",
		},
		{
			name:    "invalid yaml",
			content: "server:\n  port: [\n",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("TOOLGATE_SERVER_PORT", "7070")
	t.Setenv("TOOLGATE_QUOTA_BACKEND", "memory")
	t.Setenv("TOOLGATE_RATE_LIMIT_FAIL_OPEN", "yes")
	t.Setenv("TOOLGATE_SANDBOX_LIMIT", "25")
	t.Setenv("TOOLGATE_ADMIN_SECRET", "env-secret")
	t.Setenv("TOOLGATE_LOG_LEVEL", "debug")
	t.Setenv("TOOLGATE_METRICS_ENABLED", "1")

	cfg := writeAndLoad(t, `
server:
  port: 9090
quota:
  backend: sqlite
admin:
  secret: file-secret
`)

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070 (env wins)", cfg.Server.Port)
	}
	if cfg.Quota.Backend != config.BackendMemory {
		t.Errorf("Quota.Backend = %s, want memory", cfg.Quota.Backend)
	}
	if !cfg.RateLimit.FailOpen {
		t.Error("RateLimit.FailOpen = false, want true")
	}
	if cfg.Sandbox.Limit != 25 {
		t.Errorf("Sandbox.Limit = %d, want 25", cfg.Sandbox.Limit)
	}
	if cfg.Admin.Secret != "env-secret" {
		t.Errorf("Admin.Secret = %s, want env-secret", cfg.Admin.Secret)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("TOOLGATE_SERVER_PORT", "not-a-port")
	t.Setenv("TOOLGATE_STORE_TIMEOUT", "soon")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Errorf("Store.Timeout = %v, want default 2s", cfg.Store.Timeout)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9191\n")
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Server.Port != 9191 {
			t.Errorf("Port = %d, want 9191", cfg.Server.Port)
		}
	})

	t.Run("missing file falls back to env", func(t *testing.T) {
		t.Setenv("TOOLGATE_SERVER_PORT", "9292")
		cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Server.Port != 9292 {
			t.Errorf("Port = %d, want 9292", cfg.Server.Port)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := config.LoadWithFallback(""); err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
	})
}

func TestParseBoolValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{" On ", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"maybe", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TOOLGATE_OPENAPI_ENABLED", tt.value)
			cfg, err := config.LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv error: %v", err)
			}
			if cfg.OpenAPI.Enabled != tt.want {
				t.Errorf("OpenAPI.Enabled for %q = %v, want %v", tt.value, cfg.OpenAPI.Enabled, tt.want)
			}
		})
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	return config.Load(writeConfig(t, content))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
