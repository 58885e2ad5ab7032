package api

import (
	"context"
	"net/http"
	"subscriber/internal/auth"
	"subscriber/internal/ratelimit"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
	maxBodyBytes    = 1 << 20
)

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware propagates a caller supplied X-Request-ID or assigns a
// new UUID, and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen || !printableASCII(id) {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// securityHeadersMiddleware sets browser hardening headers on every response.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

// RateLimitKeyFunc keys requests that carry a valid bearer token by user and
// everything else by client IP. An invalid token is treated as anonymous;
// rejecting it is left to the auth middleware.
func RateLimitKeyFunc(tv auth.TokenValidator, resolver ratelimit.ClientIPResolver) ratelimit.KeyFunc {
	return func(r *http.Request) (string, bool) {
		if tv != nil {
			if token, ok := auth.BearerToken(r); ok {
				if subject, err := tv.Validate(token); err == nil {
					return "user:" + subject, true
				}
			}
		}
		return resolver.ClientIP(r), false
	}
}
