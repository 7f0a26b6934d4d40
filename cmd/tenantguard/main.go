package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantguard/pkg/api"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/identity"
	"github.com/platinummonkey/tenantguard/pkg/members"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/rolecache"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

var version = "dev"

var (
	configFile    = flag.String("config", "", "Path to a YAML config file (overrides "+config.ConfigFileEnv+")")
	dbStatsPeriod = flag.String("db-stats-schedule", "@every 15s", "Cron schedule for copying connection pool stats into metrics")
	printVersion  = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *printVersion {
		fmt.Println(version)
		return
	}

	if *configFile != "" {
		os.Setenv(config.ConfigFileEnv, *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("tenantguard exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = observability.WithLogger(ctx, logger)

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	conn, err := cfg.Database.Connection()
	if err != nil {
		return err
	}
	db, err := store.Open(conn)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	logger.WithField("dialect", conn.Dialect).Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx, db, conn.Dialect); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}
	st := store.NewSQLStore(db, conn.Dialect)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	if otelProviders != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return err
		}
		metrics.WithOTel(otelMetrics)
	}

	var redisClient *redis.Client
	var backend rolecache.Backend
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		redisClient, err = rolecache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		backend = rolecache.NewRedisBackend(redisClient, cfg.Cache.RedisPrefix)
	default:
		backend = rolecache.NewMemoryBackend(cfg.Cache.Size, cfg.Cache.TTL)
	}
	roles := rolecache.New(backend, rolecache.StoreLoader(st),
		rolecache.WithTTL(cfg.Cache.TTL),
		rolecache.WithRecorder(metrics),
		rolecache.WithLogger(logger),
	)
	logger.WithField("backend", backend.Name()).Info("Role cache ready")

	authenticator, err := newAuthenticator(ctx, cfg.Identity)
	if err != nil {
		return err
	}

	var claims identity.ClaimsPublisher = identity.NoopClaimsPublisher{}
	if cfg.Identity.ClaimsBaseURL != "" {
		claims, err = identity.NewHTTPClaimsPublisher(ctx, cfg.Identity.Claims())
		if err != nil {
			return err
		}
	}

	dbSink, err := audit.NewDBSink(db)
	if err != nil {
		return err
	}
	sink := audit.NewMultiSink(dbSink, audit.NewLogSink(logger))

	engine := rbac.NewEngine(st, rbac.WithDecisionRecorder(metrics))
	service := members.NewService(st,
		members.WithAuditSink(sink),
		members.WithClaimsPublisher(claims),
		members.WithCacheInvalidator(roles),
		members.WithMetrics(metrics),
		members.WithLogger(logger),
		members.WithBulkConcurrency(cfg.Mutation.BulkConcurrency),
	)

	var limiter middleware.Limiter
	if rl, ok := cfg.Mutation.RateLimitConfig(); ok {
		if redisClient != nil {
			limiter = middleware.NewRedisLimiter(redisClient, rl, "")
		} else {
			local := middleware.NewLocalLimiter(rl)
			local.StartCleanup(ctx)
			limiter = local
		}
	}

	guard := middleware.NewGuard(authenticator, st, engine, middleware.WithGuardLogger(logger))
	server := api.NewServer(api.Deps{
		Guard:   guard,
		Engine:  engine,
		Members: service,
		Roster:  st,
		Roles:   roles,
		Audit:   dbSink,
		Limiter: limiter,
		Logger:  logger,
	})

	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.RecoveryMiddleware(logger))
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	server.RegisterRoutes(router)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "tenantguard")
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics stay off the public listener
	opsRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(opsRouter, newHealthChecker(st, redisClient))
	if cfg.Observability.MetricsEnabled {
		opsRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	opsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: opsRouter,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*dbStatsPeriod, func() { metrics.CollectDBStats(db) }); err != nil {
		return fmt.Errorf("invalid db stats schedule: %w", err)
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("ops server", opsServer.Shutdown)
	shutdown.Register("background", func(context.Context) error {
		cancel()
		return nil
	})

	serveErr := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		defer observability.RecoverPanic(logger, name)
		logger.WithField("addr", srv.Addr).Infof("Starting %s", name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("%s: %w", name, err)
		}
	}
	go serve("ops server", opsServer)
	go serve("api server", httpServer)

	signalled := make(chan error, 1)
	go func() { signalled <- shutdown.WaitForSignal() }()

	select {
	case err := <-signalled:
		return err
	case err := <-serveErr:
		logger.WithError(err).Error("Server failed, shutting down")
		if shutdownErr := shutdown.Shutdown(); shutdownErr != nil {
			logger.WithError(shutdownErr).Error("Shutdown incomplete")
		}
		return err
	}
}

func newAuthenticator(ctx context.Context, cfg config.IdentityConfig) (identity.Authenticator, error) {
	switch cfg.Mode {
	case config.IdentityOIDC:
		return identity.NewOIDCAuthenticator(ctx, cfg.Issuer, cfg.ClientID)
	case config.IdentityJWT:
		return identity.NewJWTAuthenticator(cfg.JWTSecret, cfg.Issuer)
	default:
		return nil, fmt.Errorf("unsupported identity mode %q", cfg.Mode)
	}
}

func newHealthChecker(st *store.SQLStore, redisClient *redis.Client) *observability.HealthChecker {
	// A nil *redis.Client must not become a non-nil interface
	if redisClient == nil {
		return observability.NewHealthChecker(st.DB(), nil, version)
	}
	return observability.NewHealthChecker(st.DB(), redisClient, version)
}
