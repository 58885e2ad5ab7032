package storage

import (
	"context"
	"subscriber/internal/models"
	"time"
)

// Storage defines the interface for user and subscriber persistence.
// Implementations return ErrNotFound for missing records and ErrConflict for
// duplicate emails, wrapped with context where useful.
type Storage interface {
	// CreateUser stores a new user
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, id string) (*models.User, error)

	// GetUserByEmail retrieves a user by email address
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// ListUsers returns all users, newest first
	ListUsers(ctx context.Context) ([]*models.User, error)

	// UpdateUser replaces the name, email and updated timestamp of an existing user
	UpdateUser(ctx context.Context, user *models.User) error

	// DeleteUser removes a user by ID
	DeleteUser(ctx context.Context, id string) error

	// CreateSubscriber stores a new newsletter subscriber
	CreateSubscriber(ctx context.Context, sub *models.Subscriber) error

	// GetSubscriberByToken looks a subscriber up by confirmation token hash
	GetSubscriberByToken(ctx context.Context, tokenHash string) (*models.Subscriber, error)

	// GetSubscriberByEmail retrieves a subscriber by email address
	GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error)

	// ConfirmSubscriber marks a subscriber as confirmed at the given time
	ConfirmSubscriber(ctx context.Context, id string, at time.Time) error

	// DeleteSubscriber removes a subscriber by ID
	DeleteSubscriber(ctx context.Context, id string) error

	// ListSubscribers returns all subscribers, newest first
	ListSubscribers(ctx context.Context) ([]*models.Subscriber, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, postgres, sqlite)
	Type string

	// ConnectionString is used for database backends
	ConnectionString string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// AutoMigrate applies pending schema migrations on open
	AutoMigrate bool
}
