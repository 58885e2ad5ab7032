package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"subscriber/internal/models"
	"subscriber/internal/service"
	"subscriber/internal/storage"
	"subscriber/internal/version"
	"time"

	"github.com/gorilla/mux"
)

const healthCheckTimeout = 2 * time.Second

// Handlers contains HTTP handlers for the subscriber API
type Handlers struct {
	users         service.UserServiceInterface
	subscriptions service.SubscriptionServiceInterface
	storage       storage.Storage
	version       version.Info
	started       time.Time
	publicURL     string
	openapi       openAPIDoc
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithStorage lets the health check ping the store.
func WithStorage(s storage.Storage) HandlerOption {
	return func(h *Handlers) {
		h.storage = s
	}
}

// WithVersion reports build metadata from the health check.
func WithVersion(v version.Info) HandlerOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(users service.UserServiceInterface, subscriptions service.SubscriptionServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		users:         users,
		subscriptions: subscriptions,
		started:       time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.started).Round(time.Second).String()

	statusCode := http.StatusOK
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			slog.Error("Health check storage ping failed", "error", err)
			response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
			response.Status = models.StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	h.writeJSONResponse(w, statusCode, response)
}

// Hello greets the caller in plain text.
// GET / and GET /{name}
func (h *Handlers) Hello(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" {
		name = "World"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Hello, %s!", name)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are already written, nothing else to send
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeErrorDetails(w, statusCode, errorCode, message, nil)
}

func (h *Handlers) writeErrorDetails(w http.ResponseWriter, statusCode int, errorCode, message string, details map[string]string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.Details = details
	errorResp.RequestID = w.Header().Get(requestIDHeader)
	h.writeJSONResponse(w, statusCode, errorResp)
}

// writeServiceError maps service errors to their HTTP status. Anything that
// is not a ServiceError is logged and reported as a 500 without detail.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.ServiceError
	if !errors.As(err, &se) {
		slog.Error("Unhandled error", "error", err, "path", r.URL.Path)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	if se.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", se, "code", se.Code, "path", r.URL.Path)
	}
	h.writeErrorDetails(w, se.StatusCode, se.Code, se.Message, se.Details)
}

// decodeJSON reads a JSON request body of at most maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
