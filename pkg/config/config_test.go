package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/tenantguard?sslmode=disable"
	cfg.Identity.Issuer = "https://idp.example.com"
	cfg.Identity.ClientID = "tenantguard"
	return cfg
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TG_TEST_STRING", "custom")
	t.Setenv("TG_TEST_BOOL", "1")
	t.Setenv("TG_TEST_INT", "42")
	t.Setenv("TG_TEST_BAD_INT", "forty-two")
	t.Setenv("TG_TEST_FLOAT", "2.5")
	t.Setenv("TG_TEST_DURATION", "90s")
	t.Setenv("TG_TEST_LIST", " a, b,,c ")

	assert.Equal(t, "custom", getEnv("TG_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("TG_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("TG_TEST_BOOL", false))
	assert.True(t, getEnvBool("TG_TEST_UNSET", true))
	assert.Equal(t, 42, getEnvInt("TG_TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("TG_TEST_BAD_INT", 7))
	assert.Equal(t, 2.5, getEnvFloat("TG_TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("TG_TEST_DURATION", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TG_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("TG_TEST_UNSET", []string{"x"}))
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("TENANTGUARD_DB_DRIVER", "sqlite")
	t.Setenv("TENANTGUARD_DB_URL", "file:tenantguard.db")
	t.Setenv("TENANTGUARD_IDENTITY_MODE", "jwt")
	t.Setenv("TENANTGUARD_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TENANTGUARD_CACHE_BACKEND", "redis")
	t.Setenv("TENANTGUARD_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TENANTGUARD_CACHE_TTL", "10s")
	t.Setenv("TENANTGUARD_BULK_CONCURRENCY", "4")
	t.Setenv("TENANTGUARD_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, IdentityJWT, cfg.Identity.Mode)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 10*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 4, cfg.Mutation.BulkConcurrency)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
	assert.Equal(t, "8080", cfg.Server.Port, "unset variables keep defaults")
}

func TestLoadConfig_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenantguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "8443"
  read_timeout: 5s
database:
  url: postgres://db/tenantguard
identity:
  issuer: https://idp.example.com
  client_id: tenantguard
  claims_base_url: https://idp.example.com/api
  claims_scopes: [users.write]
mutation:
  bulk_concurrency: 2
`), 0o600))

	t.Setenv(ConfigFileEnv, path)
	t.Setenv("TENANTGUARD_BULK_CONCURRENCY", "16")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8443", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "defaults survive the file")
	assert.Equal(t, "postgres://db/tenantguard", cfg.Database.URL)
	assert.Equal(t, []string{"users.write"}, cfg.Identity.ClaimsScopes)
	assert.Equal(t, 16, cfg.Mutation.BulkConcurrency, "environment wins over the file")
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))
		t.Setenv(ConfigFileEnv, path)
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "configuration validation failed")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"shared ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"missing database URL", func(c *Config) { c.Database.URL = "" }, "database URL is required"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"redis without URL", func(c *Config) { c.Cache.Backend = CacheRedis }, "redis URL is required"},
		{"zero cache size", func(c *Config) { c.Cache.Size = 0 }, "cache size must be positive"},
		{"zero TTL", func(c *Config) { c.Cache.TTL = 0 }, "cache TTL must be positive"},
		{"oidc without issuer", func(c *Config) { c.Identity.Issuer = "" }, "OIDC issuer and client ID"},
		{"short jwt secret", func(c *Config) {
			c.Identity.Mode = IdentityJWT
			c.Identity.JWTSecret = "short"
		}, "at least 32 bytes"},
		{"unknown identity mode", func(c *Config) { c.Identity.Mode = "saml" }, "invalid identity mode"},
		{"token URL without base", func(c *Config) { c.Identity.ClaimsTokenURL = "https://idp/token" }, "claims base URL is required"},
		{"zero bulk concurrency", func(c *Config) { c.Mutation.BulkConcurrency = 0 }, "bulk concurrency"},
		{"rate limit without window", func(c *Config) { c.Mutation.RateWindow = 0 }, "rate window"},
		{"rate limit disabled", func(c *Config) {
			c.Mutation.RateLimit = 0
			c.Mutation.RateWindow = 0
		}, ""},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "OpenTelemetry endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Identity.ClaimsBaseURL = "https://idp.example.com/api"
	cfg.Identity.ClaimsTokenURL = "https://idp.example.com/oauth/token"

	conn, err := cfg.Database.Connection()
	require.NoError(t, err)
	assert.Equal(t, store.DialectPostgres, conn.Dialect)
	assert.Equal(t, cfg.Database.URL, conn.URL)
	assert.Equal(t, 20, conn.MaxConns)

	claims := cfg.Identity.Claims()
	assert.Equal(t, "https://idp.example.com/api", claims.BaseURL)
	assert.Equal(t, "https://idp.example.com/oauth/token", claims.TokenURL)
	assert.Equal(t, 10.0, claims.RequestsPerSecond)

	rl, ok := cfg.Mutation.RateLimitConfig()
	require.True(t, ok)
	assert.Equal(t, 60, rl.RequestsPerWindow)
	assert.Equal(t, time.Minute, rl.WindowDuration)

	cfg.Mutation.RateLimit = 0
	_, ok = cfg.Mutation.RateLimitConfig()
	assert.False(t, ok)

	otel := cfg.Observability.OTel()
	assert.Equal(t, "tenantguard", otel.ServiceName)
	assert.False(t, otel.Enabled)
}
