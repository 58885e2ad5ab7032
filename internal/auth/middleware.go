package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"subscriber/internal/models"
)

type contextKey struct{}

// TokenValidator is satisfied by *TokenManager.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// WithSubject returns a copy of ctx carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKey{}, subject)
}

// SubjectFromContext returns the authenticated subject stored by Middleware.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(contextKey{}).(string)
	return subject, ok && subject != ""
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the token subject in the request context otherwise.
func Middleware(tv TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w, "Authorization required")
				return
			}
			subject, err := tv.Validate(token)
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="subscriber"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, models.ErrorCodeUnauthorized))
}
