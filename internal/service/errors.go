package service

import (
	"fmt"
	"net/http"
	"subscriber/internal/models"
)

// ServiceError represents errors from the services with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Details    map[string]string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewUserNotFoundError(id string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUserNotFound,
		Message:    fmt.Sprintf("user '%s' not found", id),
		StatusCode: http.StatusNotFound,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewValidationError carries per-field messages when err is a models.ValidationErrors.
func NewValidationError(message string, err error) *ServiceError {
	se := &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
	if fields, ok := err.(models.ValidationErrors); ok {
		se.Details = fields
	}
	return se
}

func NewUnauthorizedError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewConflictError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}
