package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func serve(handler http.Handler, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	limiter := newTestWindow(t, 10, time.Minute)
	handler := Middleware(limiter, nil)(http.HandlerFunc(okHandler))

	rr := serve(handler, "192.168.1.1:12345", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestMiddleware_DeniedRequest(t *testing.T) {
	limiter := newTestWindow(t, 2, time.Minute)
	reached := 0
	handler := Middleware(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rr := serve(handler, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	// Third request should be denied
	rr := serve(handler, "192.168.1.1:12345", nil)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, 2, reached, "rejected request must not reach the handler")
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retryAfter > 0 && retryAfter <= 60)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.Equal(t, "Too many requests, please try again later", body["message"])
}

func TestMiddleware_ClientsLimitedSeparately(t *testing.T) {
	limiter := newTestWindow(t, 1, time.Minute)
	handler := Middleware(limiter, nil)(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, serve(handler, "192.168.1.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "192.168.1.1:2", nil).Code)
	assert.Equal(t, http.StatusOK, serve(handler, "192.168.1.2:1", nil).Code)
}

func TestMiddleware_UnknownClientUsesDefaultKey(t *testing.T) {
	limiter := newTestWindow(t, 1, time.Minute)
	handler := Middleware(limiter, nil)(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, serve(handler, "", nil).Code)
	// same bucket as the default key
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "127.0.0.1:9999", nil).Code)
}

func TestMiddleware_AuthenticatedRequest(t *testing.T) {
	anonLimiter := newTestWindow(t, 2, time.Minute)
	authLimiter := newTestWindow(t, 5, time.Minute)

	keyFunc := func(r *http.Request) (string, bool) {
		if token := r.Header.Get("Authorization"); token != "" {
			return "user:" + strings.TrimPrefix(token, "Bearer "), true
		}
		return ClientIPResolver{}.ClientIP(r), false
	}
	handler := Middleware(anonLimiter, authLimiter, WithKeyFunc(keyFunc))(http.HandlerFunc(okHandler))

	// Anonymous requests exhaust their limit of 2
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, "192.168.1.1:12345", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "192.168.1.1:12345", nil).Code)

	// Authenticated request from the same IP uses a separate limiter
	rr := serve(handler, "192.168.1.1:12345", map[string]string{"Authorization": "Bearer alice"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "5", rr.Header().Get("X-RateLimit-Limit"))
}

func TestMiddleware_XForwardedFor(t *testing.T) {
	limiter := newTestWindow(t, 1, time.Minute)
	handler := Middleware(limiter, nil,
		WithKeyFunc(ClientIPResolver{TrustedHops: 1}.KeyFunc()),
	)(http.HandlerFunc(okHandler))

	// two clients behind the same proxy
	rr := serve(handler, "10.0.0.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.50"})
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = serve(handler, "10.0.0.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.51"})
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = serve(handler, "10.0.0.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.50"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestMiddleware_Metrics(t *testing.T) {
	limiter := newTestWindow(t, 1, time.Minute)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg, limiter.Len)
	require.NoError(t, err)

	handler := Middleware(limiter, nil, WithMetrics(metrics))(http.HandlerFunc(okHandler))
	serve(handler, "192.168.1.1:1", nil)
	serve(handler, "192.168.1.1:1", nil)
	serve(handler, "192.168.1.2:1", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.decisions.WithLabelValues("admit", "anonymous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues("reject", "anonymous")))

	expected := `
# HELP subscriber_rate_limit_tracked_keys Client keys currently held by the in-memory limiter
# TYPE subscriber_rate_limit_tracked_keys gauge
subscriber_rate_limit_tracked_keys 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "subscriber_rate_limit_tracked_keys"))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, nil)
	require.NoError(t, err)

	_, err = NewMetrics(reg, nil)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe(Admit, true) })
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{40 * time.Second, 40},
		{40*time.Second + time.Millisecond, 41},
		{500 * time.Millisecond, 1},
		{0, 1},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryAfterSeconds(tt.in), "%v", tt.in)
	}
}
