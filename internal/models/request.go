// Package models - API request types and input validation.
//
// Validation rules:
// - Names are 2 to 100 characters after trimming
// - Emails are valid bare addresses of at most 255 characters
// - Passwords are 8 to 128 characters
// - Normalize trims whitespace and lowercases emails before storage
package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinNameLength     = 2
	MaxNameLength     = 100
	MaxEmailLength    = 255
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// CreateUserRequest registers a new user.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserRequest carries a partial update. Nil fields are left unchanged.
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// LoginRequest exchanges credentials for a token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ValidationErrors maps a field name to the reason it was rejected.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (r *CreateUserRequest) Validate() error {
	errs := ValidationErrors{}
	if msg := validateName(r.Name); msg != "" {
		errs["name"] = msg
	}
	if err := ValidateEmail(r.Email); err != nil {
		errs["email"] = err.Error()
	}
	if msg := validatePassword(r.Password); msg != "" {
		errs["password"] = msg
	}
	return errs.orNil()
}

func (r *CreateUserRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *UpdateUserRequest) Validate() error {
	errs := ValidationErrors{}
	if r.Name != nil {
		if msg := validateName(*r.Name); msg != "" {
			errs["name"] = msg
		}
	}
	if r.Email != nil {
		if err := ValidateEmail(*r.Email); err != nil {
			errs["email"] = err.Error()
		}
	}
	return errs.orNil()
}

func (r *UpdateUserRequest) Normalize() {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		r.Name = &name
	}
	if r.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*r.Email))
		r.Email = &email
	}
}

// IsEmpty reports whether the update changes nothing.
func (r *UpdateUserRequest) IsEmpty() bool {
	return r.Name == nil && r.Email == nil
}

func (r *LoginRequest) Validate() error {
	errs := ValidationErrors{}
	if err := ValidateEmail(r.Email); err != nil {
		errs["email"] = err.Error()
	}
	if msg := validatePassword(r.Password); msg != "" {
		errs["password"] = msg
	}
	return errs.orNil()
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func validateName(name string) string {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < MinNameLength || n > MaxNameLength {
		return fmt.Sprintf("name must be between %d and %d characters", MinNameLength, MaxNameLength)
	}
	return ""
}

func validatePassword(password string) string {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return fmt.Sprintf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	}
	return ""
}
