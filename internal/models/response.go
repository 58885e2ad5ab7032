// Package models - API response types and error handling.
//
// Response conventions:
// - Consistent JSON error structure across all endpoints
// - Optional fields use omitempty
// - RFC3339 timestamps
package models

import (
	"time"
)

// ErrorResponse provides structured error information.
//
// Error is "error" for ordinary failures; the rate limiter uses
// "Rate limit exceeded" so clients can match on it without reading Code.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Message    string                     `json:"message,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ListUsersResponse struct {
	Users      []UserResponse `json:"users"`
	TotalCount int            `json:"total_count"`
}

type SubscribeResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Standard HTTP Error Codes
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404
	ErrorCodeUserNotFound       = "USER_NOT_FOUND"      // 404
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400
	ErrorCodeValidation         = "VALIDATION_ERROR"    // 422
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401
	ErrorCodeForbidden          = "FORBIDDEN"           // 403
	ErrorCodeConflict           = "CONFLICT"            // 409
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503
)

const (
	RateLimitError   = "Rate limit exceeded"
	RateLimitMessage = "Too many requests, please try again later"
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewRateLimitResponse builds the body sent with 429 responses.
func NewRateLimitResponse() *ErrorResponse {
	return &ErrorResponse{
		Error:     RateLimitError,
		Message:   RateLimitMessage,
		Code:      ErrorCodeRateLimitExceeded,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
