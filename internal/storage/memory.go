package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"subscriber/internal/models"
	"sync"
	"time"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development, testing, and scenarios where data
// persistence is not required. Data is lost on restart.
type MemoryStorage struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	userEmails  map[string]string // lowercased email -> user ID
	subscribers map[string]*models.Subscriber
	subEmails   map[string]string // lowercased email -> subscriber ID
	subTokens   map[string]string // token hash -> subscriber ID
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		users:       make(map[string]*models.User),
		userEmails:  make(map[string]string),
		subscribers: make(map[string]*models.Subscriber),
		subEmails:   make(map[string]string),
		subTokens:   make(map[string]string),
	}, nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a copy of user
func (m *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, ErrConflict)
	}
	if _, exists := m.userEmails[emailKey(user.Email)]; exists {
		return fmt.Errorf("user email %s: %w", user.Email, ErrConflict)
	}

	userCopy := *user
	m.users[user.ID] = &userCopy
	m.userEmails[emailKey(user.Email)] = user.ID
	return nil
}

// GetUser retrieves a user by ID
func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	userCopy := *user
	return &userCopy, nil
}

// GetUserByEmail retrieves a user by email address, case-insensitively
func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.userEmails[emailKey(email)]
	if !exists {
		return nil, fmt.Errorf("user email %s: %w", email, ErrNotFound)
	}
	userCopy := *m.users[id]
	return &userCopy, nil
}

// ListUsers returns copies of all users, newest first
func (m *MemoryStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, user := range m.users {
		userCopy := *user
		users = append(users, &userCopy)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[j].CreatedAt.Before(users[i].CreatedAt)
	})
	return users, nil
}

// UpdateUser replaces the mutable fields of an existing user
func (m *MemoryStorage) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.users[user.ID]
	if !exists {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}

	newKey := emailKey(user.Email)
	if owner, taken := m.userEmails[newKey]; taken && owner != user.ID {
		return fmt.Errorf("user email %s: %w", user.Email, ErrConflict)
	}

	delete(m.userEmails, emailKey(existing.Email))
	m.userEmails[newKey] = user.ID
	existing.Name = user.Name
	existing.Email = user.Email
	existing.UpdatedAt = user.UpdatedAt
	return nil
}

// DeleteUser removes a user by ID
func (m *MemoryStorage) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[id]
	if !exists {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(m.userEmails, emailKey(user.Email))
	delete(m.users, id)
	return nil
}

// CreateSubscriber stores a copy of sub
func (m *MemoryStorage) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subEmails[emailKey(sub.Email)]; exists {
		return fmt.Errorf("subscriber email %s: %w", sub.Email, ErrConflict)
	}

	subCopy := *sub
	m.subscribers[sub.ID] = &subCopy
	m.subEmails[emailKey(sub.Email)] = sub.ID
	if sub.TokenHash != "" {
		m.subTokens[sub.TokenHash] = sub.ID
	}
	return nil
}

// GetSubscriberByToken looks a subscriber up by confirmation token hash
func (m *MemoryStorage) GetSubscriberByToken(ctx context.Context, tokenHash string) (*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.subTokens[tokenHash]
	if !exists {
		return nil, fmt.Errorf("subscription token: %w", ErrNotFound)
	}
	return copySubscriber(m.subscribers[id]), nil
}

// GetSubscriberByEmail retrieves a subscriber by email address
func (m *MemoryStorage) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.subEmails[emailKey(email)]
	if !exists {
		return nil, fmt.Errorf("subscriber email %s: %w", email, ErrNotFound)
	}
	return copySubscriber(m.subscribers[id]), nil
}

// ConfirmSubscriber marks a subscriber as confirmed
func (m *MemoryStorage) ConfirmSubscriber(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, exists := m.subscribers[id]
	if !exists {
		return fmt.Errorf("subscriber %s: %w", id, ErrNotFound)
	}
	sub.Status = models.SubscriptionConfirmed
	confirmedAt := at
	sub.ConfirmedAt = &confirmedAt
	return nil
}

// DeleteSubscriber removes a subscriber and frees its email and token
func (m *MemoryStorage) DeleteSubscriber(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, exists := m.subscribers[id]
	if !exists {
		return fmt.Errorf("subscriber %s: %w", id, ErrNotFound)
	}
	delete(m.subEmails, emailKey(sub.Email))
	if sub.TokenHash != "" {
		delete(m.subTokens, sub.TokenHash)
	}
	delete(m.subscribers, id)
	return nil
}

// ListSubscribers returns copies of all subscribers, newest first
func (m *MemoryStorage) ListSubscribers(ctx context.Context) ([]*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]*models.Subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		subs = append(subs, copySubscriber(sub))
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[j].CreatedAt.Before(subs[i].CreatedAt)
	})
	return subs, nil
}

// Ping always succeeds
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}

func copySubscriber(sub *models.Subscriber) *models.Subscriber {
	subCopy := *sub
	if sub.ConfirmedAt != nil {
		confirmedAt := *sub.ConfirmedAt
		subCopy.ConfirmedAt = &confirmedAt
	}
	return &subCopy
}
