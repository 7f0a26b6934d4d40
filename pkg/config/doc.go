// Package config provides application configuration from defaults, an
// optional YAML file and environment variables.
//
// # Precedence
//
// Default() < file named by TENANTGUARD_CONFIG_FILE < TENANTGUARD_* variables.
// Validate runs on the merged result.
//
// # Environment
//
// Server settings:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_PORT="8080"
//	TENANTGUARD_HEALTH_PORT="9090"
//	TENANTGUARD_READ_TIMEOUT="15s"
//
// Database settings:
//
//	TENANTGUARD_DB_DRIVER="postgres"  # postgres, sqlite
//	TENANTGUARD_DB_URL="postgres://localhost/tenantguard"
//	TENANTGUARD_DB_MAX_CONNS="20"
//	TENANTGUARD_DB_AUTO_MIGRATE="true"
//
// Role cache settings (display only, never consulted for enforcement):
//
//	TENANTGUARD_CACHE_BACKEND="memory"  # memory, redis
//	TENANTGUARD_CACHE_TTL="30s"
//	TENANTGUARD_REDIS_URL="redis://localhost:6379/0"
//
// Identity settings:
//
//	TENANTGUARD_IDENTITY_MODE="oidc"  # oidc, jwt
//	TENANTGUARD_OIDC_ISSUER="https://idp.example.com"
//	TENANTGUARD_OIDC_CLIENT_ID="tenantguard"
//	TENANTGUARD_JWT_SECRET="..."  # jwt mode, at least 32 bytes
//	TENANTGUARD_CLAIMS_BASE_URL="https://idp.example.com/api"
//	TENANTGUARD_CLAIMS_TOKEN_URL="https://idp.example.com/oauth/token"
//
// Mutation settings:
//
//	TENANTGUARD_BULK_CONCURRENCY="8"
//	TENANTGUARD_MUTATION_RATE_LIMIT="60"  # per actor per window, 0 disables
//
// Observability settings:
//
//	TENANTGUARD_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTGUARD_METRICS_ENABLED="true"
//	TENANTGUARD_OTEL_ENABLED="true"
//	TENANTGUARD_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	conn, err := cfg.Database.Connection()
package config
