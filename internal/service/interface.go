// Package service holds the user account and newsletter subscription
// business logic behind the HTTP handlers.
package service

import (
	"context"
	"subscriber/internal/models"
	"time"
)

// UserServiceInterface defines user account operations
type UserServiceInterface interface {
	// Register validates req, hashes the password and stores a new user
	Register(ctx context.Context, req *models.CreateUserRequest) (*models.User, error)

	// Login checks credentials and issues an access token
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error)

	// List returns all users, newest first
	List(ctx context.Context) ([]*models.User, error)

	// Get returns a single user
	Get(ctx context.Context, id string) (*models.User, error)

	// Update applies a partial update and returns the stored user
	Update(ctx context.Context, id string, req *models.UpdateUserRequest) (*models.User, error)

	// Delete removes a user
	Delete(ctx context.Context, id string) error
}

// SubscriptionServiceInterface defines newsletter subscription operations
type SubscriptionServiceInterface interface {
	// Subscribe stores a pending subscriber and sends a confirmation email
	Subscribe(ctx context.Context, name, email string) (*models.Subscriber, error)

	// Confirm activates the subscription owning token
	Confirm(ctx context.Context, token string) (*models.Subscriber, error)
}

// TokenIssuer issues access tokens for a user ID.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

// SubscriptionEvents receives subscription outcomes, typically for metrics.
type SubscriptionEvents interface {
	Subscribed(ctx context.Context)
	Confirmed(ctx context.Context)
	EmailFailed(ctx context.Context)
}

type noopEvents struct{}

func (noopEvents) Subscribed(context.Context)  {}
func (noopEvents) Confirmed(context.Context)   {}
func (noopEvents) EmailFailed(context.Context) {}
