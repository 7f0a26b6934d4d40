package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

var tightLimit = middleware.RateLimitConfig{
	RequestsPerWindow: 1,
	WindowDuration:    time.Hour,
	BurstSize:         1,
}

func TestLocalLimiter(t *testing.T) {
	ctx := context.Background()
	l := middleware.NewLocalLimiter(tightLimit)

	ok, _, err := l.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, retry, err := l.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	ok, _, _ = l.Allow(ctx, "actor:2")
	assert.True(t, ok, "buckets are per key")

	l.Cleanup()
	ok, _, _ = l.Allow(ctx, "actor:1")
	assert.False(t, ok, "recent buckets survive cleanup")
}

func newRedisLimiter(t *testing.T) (*middleware.RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return middleware.NewRedisLimiter(client, tightLimit, ""), mr
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t)

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "actor:1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, retry, err := l.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), retry.Seconds(), 5)
	assert.True(t, mr.Exists("tenantguard:ratelimit:actor:1"))

	mr.FastForward(time.Hour + time.Second)
	ok, _, err = l.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts after expiry")
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	l, mr := newRedisLimiter(t)
	mr.Close()

	ok, _, err := l.Allow(context.Background(), "actor:1")
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := middleware.RateLimit(middleware.NewLocalLimiter(tightLimit), observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	send := func(actorID int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/organization/acme/members/2/role", nil)
		if actorID != 0 {
			req = req.WithContext(contextkeys.WithActorID(req.Context(), actorID))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send(1).Code)

	rec := send(1)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	assert.Equal(t, http.StatusNoContent, send(2).Code)

	assert.Equal(t, http.StatusNoContent, send(0).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(0).Code, "anonymous requests share the client address bucket")
}
