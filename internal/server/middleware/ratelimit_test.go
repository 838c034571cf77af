package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	allowed bool
	err     error
	lastKey string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.lastKey = key
	return f.allowed, f.err
}

func limitedHandler(limiter *fakeLimiter, hits *int) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*hits++
		w.WriteHeader(http.StatusOK)
	})
	return RateLimit(limiter, 10, time.Minute)(next)
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	var hits int

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	limitedHandler(limiter, &hits).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits)
	assert.Equal(t, "login:203.0.113.7", limiter.lastKey)
}

func TestRateLimitDeniedReturns429(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	var hits int

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	limitedHandler(limiter, &hits).ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Zero(t, hits, "denied request must not reach the handler")
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	var hits int

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	limitedHandler(limiter, &hits).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits, "limiter outage must not block logins")
}

func TestRateLimitKeyPrefersForwardedFor(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	var hits int

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	rec := httptest.NewRecorder()
	limitedHandler(limiter, &hits).ServeHTTP(rec, req)

	assert.Equal(t, "login:198.51.100.4", limiter.lastKey)
}
