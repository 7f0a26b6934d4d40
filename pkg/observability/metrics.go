package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	// Role mutation metrics
	MutationsTotal         *prometheus.CounterVec
	SideEffectFailures     *prometheus.CounterVec
	BulkAssignmentDuration prometheus.Histogram

	// Role cache metrics
	RoleCacheLookupsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitCount        prometheus.Gauge

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"result", "granted_by"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_authz_decision_duration_seconds",
				Help:    "Authorization decision latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"result"},
		),

		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_role_mutations_total",
				Help: "Total number of role mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		SideEffectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_role_mutation_side_effect_failures_total",
				Help: "Post-commit side effects that failed after a role mutation",
			},
			[]string{"effect"},
		),
		BulkAssignmentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantguard_bulk_assignment_duration_seconds",
				Help:    "Duration of bulk role assignment requests",
				Buckets: prometheus.DefBuckets,
			},
		),

		RoleCacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_role_cache_lookups_total",
				Help: "Role cache lookups by backend and result",
			},
			[]string{"backend", "result"},
		),

		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantguard_db_connections_open",
			Help: "Number of open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantguard_db_connections_in_use",
			Help: "Number of database connections in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantguard_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBWaitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantguard_db_connections_wait_count",
			Help: "Total number of connections waited for",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.DecisionDuration,
		m.MutationsTotal,
		m.SideEffectFailures,
		m.BulkAssignmentDuration,
		m.RoleCacheLookupsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitCount,
	)

	return m
}

// WithOTel mirrors every decision, mutation and cache observation onto o
func (m *Metrics) WithOTel(o *OTelMetrics) *Metrics {
	m.otel = o
	return m
}

func resultLabel(ok bool) string {
	if ok {
		return "allow"
	}
	return "deny"
}

// RecordDecision implements rbac.DecisionRecorder
func (m *Metrics) RecordDecision(grantedBy string, allowed bool, duration time.Duration) {
	if grantedBy == "" {
		grantedBy = "none"
	}
	result := resultLabel(allowed)
	m.DecisionsTotal.WithLabelValues(result, grantedBy).Inc()
	m.DecisionDuration.WithLabelValues(result).Observe(duration.Seconds())
	if m.otel != nil {
		m.otel.recordDecision(context.Background(), grantedBy, result, duration)
	}
}

// RecordMutation counts a role mutation attempt by outcome
func (m *Metrics) RecordMutation(operation, outcome string) {
	m.MutationsTotal.WithLabelValues(operation, outcome).Inc()
	if m.otel != nil {
		m.otel.recordMutation(context.Background(), operation, outcome)
	}
}

// RecordSideEffectFailure counts a failed post-commit step
func (m *Metrics) RecordSideEffectFailure(effect string) {
	m.SideEffectFailures.WithLabelValues(effect).Inc()
	if m.otel != nil {
		m.otel.recordSideEffectFailure(context.Background(), effect)
	}
}

// RecordBulkAssignment observes the duration of one bulk request
func (m *Metrics) RecordBulkAssignment(duration time.Duration) {
	m.BulkAssignmentDuration.Observe(duration.Seconds())
}

// RecordCacheLookup counts a role cache hit or miss
func (m *Metrics) RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RoleCacheLookupsTotal.WithLabelValues(backend, result).Inc()
	if m.otel != nil {
		m.otel.recordCacheLookup(context.Background(), backend, result)
	}
}

// CollectDBStats copies connection pool statistics into the gauges
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel returns the matched mux route template so that path parameters
// do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It is intended for use with mux.Router.Use.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
