package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCreateUserRequest_Validate(t *testing.T) {
	tests := []struct {
		name        string
		request     CreateUserRequest
		expectError bool
		fields      []string
	}{
		{
			name:    "valid request",
			request: CreateUserRequest{Name: "Ursula Le Guin", Email: "ursula@example.com", Password: "correct horse"},
		},
		{
			name:        "name too short",
			request:     CreateUserRequest{Name: "U", Email: "ursula@example.com", Password: "correct horse"},
			expectError: true,
			fields:      []string{"name"},
		},
		{
			name:        "name too long",
			request:     CreateUserRequest{Name: strings.Repeat("a", 101), Email: "ursula@example.com", Password: "correct horse"},
			expectError: true,
			fields:      []string{"name"},
		},
		{
			name:        "invalid email",
			request:     CreateUserRequest{Name: "Ursula", Email: "ursula@gmailcom", Password: "correct horse"},
			expectError: true,
			fields:      []string{"email"},
		},
		{
			name:        "short password",
			request:     CreateUserRequest{Name: "Ursula", Email: "ursula@example.com", Password: "short"},
			expectError: true,
			fields:      []string{"password"},
		},
		{
			name:        "long password",
			request:     CreateUserRequest{Name: "Ursula", Email: "ursula@example.com", Password: strings.Repeat("p", 129)},
			expectError: true,
			fields:      []string{"password"},
		},
		{
			name:        "everything wrong",
			request:     CreateUserRequest{},
			expectError: true,
			fields:      []string{"name", "email", "password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Len(t, verrs, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, verrs, f)
			}
		})
	}
}

func TestCreateUserRequest_Normalize(t *testing.T) {
	req := CreateUserRequest{Name: "  Ursula  ", Email: " Ursula@Example.COM "}
	req.Normalize()

	assert.Equal(t, "Ursula", req.Name)
	assert.Equal(t, "ursula@example.com", req.Email)
}

func TestUpdateUserRequest_Validate(t *testing.T) {
	assert.NoError(t, (&UpdateUserRequest{}).Validate())
	assert.NoError(t, (&UpdateUserRequest{Name: strPtr("New Name")}).Validate())
	assert.Error(t, (&UpdateUserRequest{Name: strPtr("x")}).Validate())
	assert.Error(t, (&UpdateUserRequest{Email: strPtr("not-an-email")}).Validate())
}

func TestUpdateUserRequest_IsEmpty(t *testing.T) {
	assert.True(t, (&UpdateUserRequest{}).IsEmpty())
	assert.False(t, (&UpdateUserRequest{Email: strPtr("a@b.co")}).IsEmpty())
}

func TestLoginRequest_Validate(t *testing.T) {
	assert.NoError(t, (&LoginRequest{Email: "a@example.com", Password: "password1"}).Validate())
	assert.Error(t, (&LoginRequest{Email: "a@example.com", Password: "pw"}).Validate())
	assert.Error(t, (&LoginRequest{Email: "", Password: "password1"}).Validate())
}

func TestValidationErrors_Error(t *testing.T) {
	err := ValidationErrors{"email": "email is not valid"}
	assert.Equal(t, "validation failed: email: email is not valid", err.Error())
}
