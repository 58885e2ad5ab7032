package service

import (
	"context"
	"errors"
	"subscriber/internal/models"
	"subscriber/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStorageDown = errors.New("storage down")

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error {
	args := m.Called(ctx, recipient, subject, htmlBody, textBody)
	return args.Error(0)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Issue(subject string) (string, time.Time, error) {
	args := m.Called(subject)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) Subscribed(ctx context.Context)  { m.Called() }
func (m *mockEvents) Confirmed(ctx context.Context)   { m.Called() }
func (m *mockEvents) EmailFailed(ctx context.Context) { m.Called() }

// brokenStorage fails every call it overrides and delegates the rest.
type brokenStorage struct {
	storage.Storage
}

func (b brokenStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	return nil, errStorageDown
}

func (b brokenStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	return nil, errStorageDown
}

func (b brokenStorage) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	return errStorageDown
}

func newMemoryStorage(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	s, err := storage.NewMemoryStorage(storage.Config{})
	require.NoError(t, err)
	return s
}
