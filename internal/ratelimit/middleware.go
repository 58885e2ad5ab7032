package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"subscriber/internal/models"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc derives the rate limit key for a request and reports whether the
// caller is authenticated.
type KeyFunc func(r *http.Request) (key string, authenticated bool)

type middlewareConfig struct {
	keyFunc KeyFunc
	metrics *Metrics
	logs    *rate.Sometimes
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithKeyFunc replaces the default key derivation (client IP, no trusted proxies).
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.keyFunc = fn
	}
}

// WithMetrics counts every decision.
func WithMetrics(m *Metrics) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.metrics = m
	}
}

// WithRejectLogSampling limits rejection warnings to the first `first` and then
// one per interval.
func WithRejectLogSampling(first int, interval time.Duration) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logs = &rate.Sometimes{First: first, Interval: interval}
	}
}

// Middleware returns HTTP middleware that enforces rate limits. Anonymous
// requests use the anonymous limiter; requests the key function marks as
// authenticated use the authenticated limiter, or the anonymous one when it
// is nil. Rejected requests get a 429 with a JSON body and never reach next.
func Middleware(anonymous, authenticated Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		keyFunc: ClientIPResolver{}.KeyFunc(),
		logs:    &rate.Sometimes{First: 10, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if authenticated == nil {
		authenticated = anonymous
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, isAuth := cfg.keyFunc(r)
			if key == "" {
				key = DefaultKey
			}
			limiter := anonymous
			if isAuth {
				limiter = authenticated
			}

			decision, info := limiter.Allow(r.Context(), key)
			cfg.metrics.Observe(decision, isAuth)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if decision == Reject {
				retryAfterSecs := retryAfterSeconds(info.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(models.NewRateLimitResponse())

				cfg.logs.Do(func() {
					slog.Warn("Rate limit exceeded",
						"key", key,
						"limit", info.Limit,
						"retry_after", retryAfterSecs,
						"path", r.URL.Path,
					)
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds d up to whole seconds, never below 1.
func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}
