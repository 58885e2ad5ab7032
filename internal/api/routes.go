package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"subscriber/internal/auth"
	"subscriber/internal/models"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior. Options run after the
// built-in middleware, so they wrap the handler more tightly.
type RouteOption func(*routeSettings)

type routeSettings struct {
	middleware []mux.MiddlewareFunc
	tokens     auth.TokenValidator
}

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(s *routeSettings) {
		s.middleware = append(s.middleware, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/metrics" &&
					r.URL.Path != "/api/v1/openapi.yaml" &&
					r.URL.Path != "/api/v1/docs"
			}),
		))
	}
}

// WithRateLimiter adds rate limiting middleware to the router.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(s *routeSettings) {
		s.middleware = append(s.middleware, middleware)
	}
}

// WithTokenValidator protects the user read/update/delete routes with bearer
// token auth. It is required when config.Security.EnableAuth is set.
func WithTokenValidator(tv auth.TokenValidator) RouteOption {
	return func(s *routeSettings) {
		s.tokens = tv
	}
}

// SetupRoutes configures the HTTP routes for the API.
//
// Middleware order, outermost first: recovery, request id, security headers,
// CORS, request log, then the RouteOption middleware in the order given.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	settings := &routeSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	chain := []mux.MiddlewareFunc{recoveryMiddleware, requestIDMiddleware, securityHeadersMiddleware}
	if config.Server.CORS.Enabled {
		chain = append(chain, corsMiddleware(config.Server.CORS))
	}
	chain = append(chain, loggingMiddleware)
	chain = append(chain, settings.middleware...)

	router := mux.NewRouter()
	router.Use(chain...)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", handlers.Login).Methods("POST")
	api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")
	api.HandleFunc("/docs", handlers.ServeSwaggerUI).Methods("GET")

	publicUsers := api.PathPrefix("/users").Subrouter()
	publicUsers.HandleFunc("", handlers.CreateUser).Methods("POST")

	users := api.PathPrefix("/users").Subrouter()
	if config.Security.EnableAuth {
		if settings.tokens == nil {
			panic("api: auth is enabled but no token validator was configured")
		}
		users.Use(auth.Middleware(settings.tokens))
	}
	users.HandleFunc("", handlers.ListUsers).Methods("GET")
	users.HandleFunc("/{id}", handlers.GetUser).Methods("GET")
	users.HandleFunc("/{id}", handlers.UpdateUser).Methods("PUT")
	users.HandleFunc("/{id}", handlers.DeleteUser).Methods("DELETE")

	router.HandleFunc("/subscriptions", handlers.Subscribe).Methods("POST")
	router.HandleFunc("/subscribe", handlers.Subscribe).Methods("POST")
	router.HandleFunc("/subscriptions/confirm", handlers.ConfirmSubscription).Methods("GET")

	// Preflight requests only need the CORS headers set by the middleware
	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	for _, path := range []string{
		"/api/v1/auth/login", "/api/v1/users", "/api/v1/users/{id}",
		"/subscriptions", "/subscribe", "/subscriptions/confirm",
	} {
		router.HandleFunc(path, preflight).Methods("OPTIONS")
	}

	router.HandleFunc("/", handlers.Hello).Methods("GET")
	router.HandleFunc("/{name}", handlers.Hello).Methods("GET")

	// mux only runs Use middleware on matched routes
	router.MethodNotAllowedHandler = wrapChain(chain, http.HandlerFunc(methodNotAllowedHandler))
	router.NotFoundHandler = wrapChain(chain, http.HandlerFunc(notFoundHandler))

	return router
}

// wrapChain applies chain to h with chain[0] outermost.
func wrapChain(chain []mux.MiddlewareFunc, h http.Handler) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Path    string
	Methods []string
}

// ListRoutes returns the routes registered on router sorted by path.
func ListRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		if route.GetHandler() == nil {
			return nil
		}
		path, err := route.GetPathTemplate()
		if err != nil {
			path, err = route.GetPathRegexp()
			if err != nil {
				return nil
			}
			path += "*"
		}
		methods, _ := route.GetMethods()
		routes = append(routes, RouteInfo{Path: path, Methods: methods})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk routes: %w", err)
	}
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	return routes, nil
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	errorResp := models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest)
	json.NewEncoder(w).Encode(errorResp)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	errorResp := models.NewErrorResponse("Resource not found", models.ErrorCodeNotFound)
	json.NewEncoder(w).Encode(errorResp)
}

// corsMiddleware handles Cross-Origin Resource Sharing
func corsMiddleware(corsConfig models.CORSConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(corsConfig.AllowedOrigins) > 0 {
				origin := r.Header.Get("Origin")
				if origin != "" && (contains(corsConfig.AllowedOrigins, "*") || contains(corsConfig.AllowedOrigins, origin)) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			if len(corsConfig.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsConfig.AllowedMethods, ", "))
			}
			if len(corsConfig.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsConfig.AllowedHeaders, ", "))
			}
			if corsConfig.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", corsConfig.MaxAge))
			}
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs one line per request once the response is written
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.InfoContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration_ms", m.Duration.Milliseconds(),
			"bytes", m.Written,
			"remote_addr", r.RemoteAddr,
			"request_id", RequestIDFromContext(r.Context()))
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				errorResp := models.NewErrorResponse("Internal server error", models.ErrorCodeInternalError)
				json.NewEncoder(w).Encode(errorResp)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
