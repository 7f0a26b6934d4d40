package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantguard/pkg/identity"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// ConfigFileEnv names the optional YAML file loaded before the environment
const ConfigFileEnv = "TENANTGUARD_CONFIG_FILE"

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Identity modes
const (
	IdentityOIDC = "oidc"
	IdentityJWT  = "jwt"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Identity      IdentityConfig      `yaml:"identity"`
	Mutation      MutationConfig      `yaml:"mutation"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s liveness and readiness)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig selects and tunes the SQL store
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	AutoMigrate bool          `yaml:"auto_migrate"`
}

// CacheConfig configures the display-only role cache
type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	Size        int           `yaml:"size"`
	TTL         time.Duration `yaml:"ttl"`
	RedisURL    string        `yaml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

// IdentityConfig configures token verification and the claims publisher
type IdentityConfig struct {
	Mode      string `yaml:"mode"`
	Issuer    string `yaml:"issuer"`
	ClientID  string `yaml:"client_id"`
	JWTSecret string `yaml:"jwt_secret"`

	ClaimsBaseURL           string        `yaml:"claims_base_url"`
	ClaimsClientID          string        `yaml:"claims_client_id"`
	ClaimsClientSecret      string        `yaml:"claims_client_secret"`
	ClaimsTokenURL          string        `yaml:"claims_token_url"`
	ClaimsScopes            []string      `yaml:"claims_scopes"`
	ClaimsRequestsPerSecond float64       `yaml:"claims_requests_per_second"`
	ClaimsBurst             int           `yaml:"claims_burst"`
	ClaimsTimeout           time.Duration `yaml:"claims_timeout"`
}

// MutationConfig tunes role mutation endpoints
type MutationConfig struct {
	BulkConcurrency int           `yaml:"bulk_concurrency"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
	RateBurst       int           `yaml:"rate_burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the built-in configuration
func Default() *Config {
	rl := middleware.DefaultRateLimitConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			Driver:      string(store.DialectPostgres),
			MaxConns:    20,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
			AutoMigrate: true,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Size:    10000,
			TTL:     30 * time.Second,
		},
		Identity: IdentityConfig{
			Mode:                    IdentityOIDC,
			ClaimsRequestsPerSecond: 10,
			ClaimsBurst:             5,
			ClaimsTimeout:           10 * time.Second,
		},
		Mutation: MutationConfig{
			BulkConcurrency: 8,
			RateLimit:       rl.RequestsPerWindow,
			RateWindow:      rl.WindowDuration,
			RateBurst:       rl.BurstSize,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tenantguard",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by TENANTGUARD_CONFIG_FILE and TENANTGUARD_* environment variables,
// in increasing precedence
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("TENANTGUARD_HOST", s.Host)
	s.Port = getEnv("TENANTGUARD_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TENANTGUARD_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TENANTGUARD_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TENANTGUARD_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TENANTGUARD_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("TENANTGUARD_HEALTH_PORT", s.HealthPort)

	d := &c.Database
	d.Driver = getEnv("TENANTGUARD_DB_DRIVER", d.Driver)
	d.URL = getEnv("TENANTGUARD_DB_URL", d.URL)
	d.MaxConns = getEnvInt("TENANTGUARD_DB_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("TENANTGUARD_DB_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("TENANTGUARD_DB_TIMEOUT", d.Timeout)
	d.MaxLifetime = getEnvDuration("TENANTGUARD_DB_MAX_LIFETIME", d.MaxLifetime)
	d.MaxIdleTime = getEnvDuration("TENANTGUARD_DB_MAX_IDLE_TIME", d.MaxIdleTime)
	d.AutoMigrate = getEnvBool("TENANTGUARD_DB_AUTO_MIGRATE", d.AutoMigrate)

	ca := &c.Cache
	ca.Backend = getEnv("TENANTGUARD_CACHE_BACKEND", ca.Backend)
	ca.Size = getEnvInt("TENANTGUARD_CACHE_SIZE", ca.Size)
	ca.TTL = getEnvDuration("TENANTGUARD_CACHE_TTL", ca.TTL)
	ca.RedisURL = getEnv("TENANTGUARD_REDIS_URL", ca.RedisURL)
	ca.RedisPrefix = getEnv("TENANTGUARD_REDIS_PREFIX", ca.RedisPrefix)

	i := &c.Identity
	i.Mode = getEnv("TENANTGUARD_IDENTITY_MODE", i.Mode)
	i.Issuer = getEnv("TENANTGUARD_OIDC_ISSUER", i.Issuer)
	i.ClientID = getEnv("TENANTGUARD_OIDC_CLIENT_ID", i.ClientID)
	i.JWTSecret = getEnv("TENANTGUARD_JWT_SECRET", i.JWTSecret)
	i.ClaimsBaseURL = getEnv("TENANTGUARD_CLAIMS_BASE_URL", i.ClaimsBaseURL)
	i.ClaimsClientID = getEnv("TENANTGUARD_CLAIMS_CLIENT_ID", i.ClaimsClientID)
	i.ClaimsClientSecret = getEnv("TENANTGUARD_CLAIMS_CLIENT_SECRET", i.ClaimsClientSecret)
	i.ClaimsTokenURL = getEnv("TENANTGUARD_CLAIMS_TOKEN_URL", i.ClaimsTokenURL)
	i.ClaimsScopes = getEnvList("TENANTGUARD_CLAIMS_SCOPES", i.ClaimsScopes)
	i.ClaimsRequestsPerSecond = getEnvFloat("TENANTGUARD_CLAIMS_RPS", i.ClaimsRequestsPerSecond)
	i.ClaimsBurst = getEnvInt("TENANTGUARD_CLAIMS_BURST", i.ClaimsBurst)
	i.ClaimsTimeout = getEnvDuration("TENANTGUARD_CLAIMS_TIMEOUT", i.ClaimsTimeout)

	m := &c.Mutation
	m.BulkConcurrency = getEnvInt("TENANTGUARD_BULK_CONCURRENCY", m.BulkConcurrency)
	m.RateLimit = getEnvInt("TENANTGUARD_MUTATION_RATE_LIMIT", m.RateLimit)
	m.RateWindow = getEnvDuration("TENANTGUARD_MUTATION_RATE_WINDOW", m.RateWindow)
	m.RateBurst = getEnvInt("TENANTGUARD_MUTATION_RATE_BURST", m.RateBurst)

	o := &c.Observability
	o.LogLevel = getEnv("TENANTGUARD_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TENANTGUARD_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TENANTGUARD_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TENANTGUARD_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TENANTGUARD_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TENANTGUARD_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TENANTGUARD_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TENANTGUARD_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if _, err := store.ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Cache.Backend {
	case CacheMemory:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive for the memory backend")
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	switch c.Identity.Mode {
	case IdentityOIDC:
		if c.Identity.Issuer == "" || c.Identity.ClientID == "" {
			return fmt.Errorf("OIDC issuer and client ID are required in oidc mode")
		}
	case IdentityJWT:
		if len(c.Identity.JWTSecret) < 32 {
			return fmt.Errorf("JWT secret must be at least 32 bytes in jwt mode")
		}
	default:
		return fmt.Errorf("invalid identity mode: %s (must be oidc or jwt)", c.Identity.Mode)
	}
	if c.Identity.ClaimsTokenURL != "" && c.Identity.ClaimsBaseURL == "" {
		return fmt.Errorf("claims base URL is required when a claims token URL is set")
	}

	if c.Mutation.BulkConcurrency < 1 {
		return fmt.Errorf("bulk concurrency must be at least 1")
	}
	if c.Mutation.RateLimit > 0 && c.Mutation.RateWindow <= 0 {
		return fmt.Errorf("mutation rate window must be positive when rate limiting is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Connection converts the database section for store.Open
func (d DatabaseConfig) Connection() (store.ConnectionConfig, error) {
	dialect, err := store.ParseDialect(d.Driver)
	if err != nil {
		return store.ConnectionConfig{}, err
	}
	return store.ConnectionConfig{
		Dialect:     dialect,
		URL:         d.URL,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}, nil
}

// Claims converts the claims publisher settings
func (i IdentityConfig) Claims() identity.HTTPClaimsConfig {
	return identity.HTTPClaimsConfig{
		BaseURL:           i.ClaimsBaseURL,
		ClientID:          i.ClaimsClientID,
		ClientSecret:      i.ClaimsClientSecret,
		TokenURL:          i.ClaimsTokenURL,
		Scopes:            i.ClaimsScopes,
		RequestsPerSecond: i.ClaimsRequestsPerSecond,
		Burst:             i.ClaimsBurst,
		Timeout:           i.ClaimsTimeout,
	}
}

// RateLimitConfig converts the mutation rate limit. ok is false when disabled.
func (m MutationConfig) RateLimitConfig() (cfg middleware.RateLimitConfig, ok bool) {
	if m.RateLimit <= 0 {
		return middleware.RateLimitConfig{}, false
	}
	return middleware.RateLimitConfig{
		RequestsPerWindow: m.RateLimit,
		WindowDuration:    m.RateWindow,
		BurstSize:         m.RateBurst,
	}, true
}

// Level parses the configured log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the OpenTelemetry settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, or returns the default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
