package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDecision("organization", true, time.Millisecond)
	m.RecordDecision("", false, time.Millisecond)
	m.RecordDecision("", false, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("allow", "organization")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("deny", "none")))

	m.RecordMutation("change_org_role", "success")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("change_org_role", "success")))

	m.RecordSideEffectFailure("claims")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffectFailures.WithLabelValues("claims")))

	m.RecordBulkAssignment(50 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.BulkAssignmentDuration))

	m.RecordCacheLookup("redis", true)
	m.RecordCacheLookup("redis", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoleCacheLookupsTotal.WithLabelValues("redis", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoleCacheLookupsTotal.WithLabelValues("redis", "miss")))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/orgs/{org}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, org := range []string{"acme", "globex"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orgs/"+org, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/orgs/{org}", "418")))

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "tenantguard_http_requests_total"))
}
