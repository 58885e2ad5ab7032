package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"subscriber/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var linkPattern = regexp.MustCompile(`https?://\S+/subscriptions/confirm\?token=[A-Za-z0-9%_\-]+`)

// tokenFromEmail pulls the confirmation token out of the text body.
func tokenFromEmail(t *testing.T, body string) string {
	t.Helper()
	link := linkPattern.FindString(body)
	require.NotEmpty(t, link, "no confirmation link in %q", body)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestSubscriptionService_SubscribeAndConfirm(t *testing.T) {
	store := newMemoryStorage(t)
	sender := &mockSender{}
	svc := NewSubscriptionService(store, sender, "http://localhost:8080/")

	var textBody string
	sender.On("SendEmail", mock.Anything, models.SubscriberEmail("ursula@example.com"), "Welcome!", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { textBody = args.String(4) }).
		Return(nil).Once()

	sub, err := svc.Subscribe(context.Background(), " Ursula Le Guin ", "Ursula@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ursula Le Guin", sub.Name)
	assert.Equal(t, "ursula@example.com", sub.Email)
	assert.Equal(t, models.SubscriptionPending, sub.Status)
	sender.AssertExpectations(t)

	token := tokenFromEmail(t, textBody)
	assert.Len(t, token, 32)
	assert.Contains(t, textBody, "http://localhost:8080/subscriptions/confirm?token=")

	confirmed, err := svc.Confirm(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	stored, err := store.GetSubscriberByEmail(context.Background(), "ursula@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionConfirmed, stored.Status)

	again, err := svc.Confirm(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionConfirmed, again.Status)
}

func TestSubscriptionService_Subscribe_InvalidInput(t *testing.T) {
	sender := &mockSender{}
	svc := NewSubscriptionService(newMemoryStorage(t), sender, "http://localhost")

	tests := []struct {
		name  string
		input string
		email string
	}{
		{"empty name", "   ", "ursula@example.com"},
		{"forbidden character", "Ursula {Le} Guin", "ursula@example.com"},
		{"missing email", "Ursula", ""},
		{"invalid email", "Ursula", "definitely-not-an-email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Subscribe(context.Background(), tt.input, tt.email)
			requireServiceError(t, err, http.StatusBadRequest)
		})
	}
	sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriptionService_Subscribe_Duplicate(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc := NewSubscriptionService(newMemoryStorage(t), sender, "http://localhost")

	_, err := svc.Subscribe(context.Background(), "Ursula", "ursula@example.com")
	require.NoError(t, err)

	_, err = svc.Subscribe(context.Background(), "Ursula", "URSULA@example.com")
	requireServiceError(t, err, http.StatusConflict)
	sender.AssertNumberOfCalls(t, "SendEmail", 1)
}

func TestSubscriptionService_Subscribe_EmailFailure(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp unavailable"))
	svc := NewSubscriptionService(newMemoryStorage(t), sender, "http://localhost")

	_, err := svc.Subscribe(context.Background(), "Ursula", "ursula@example.com")
	requireServiceError(t, err, http.StatusInternalServerError)
}

func TestSubscriptionService_Subscribe_RetryAfterEmailFailure(t *testing.T) {
	store := newMemoryStorage(t)
	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down")).Once()
	var textBody string
	sender.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { textBody = args.String(4) }).
		Return(nil)
	svc := NewSubscriptionService(store, sender, "http://localhost")
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "Ann", "ann@example.com")
	requireServiceError(t, err, http.StatusInternalServerError)

	subs, err := store.ListSubscribers(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs, "failed send must not leave a pending row")

	sub, err := svc.Subscribe(ctx, "Ann", "ann@example.com")
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, tokenFromEmail(t, textBody))
	require.NoError(t, err)
	assert.Equal(t, sub.ID, confirmed.ID)
	sender.AssertNumberOfCalls(t, "SendEmail", 2)
}

func TestSubscriptionService_ReportsEvents(t *testing.T) {
	events := &mockEvents{}
	events.On("EmailFailed").Return().Once()
	events.On("Subscribed").Return().Once()
	events.On("Confirmed").Return().Once()

	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down")).Once()
	var textBody string
	sender.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { textBody = args.String(4) }).
		Return(nil)
	svc := NewSubscriptionService(newMemoryStorage(t), sender, "http://localhost", WithSubscriptionEvents(events))
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "Ann", "ann@example.com")
	require.Error(t, err)
	_, err = svc.Subscribe(ctx, "Ann", "ann@example.com")
	require.NoError(t, err)

	token := tokenFromEmail(t, textBody)
	_, err = svc.Confirm(ctx, token)
	require.NoError(t, err)
	// already confirmed, not counted again
	_, err = svc.Confirm(ctx, token)
	require.NoError(t, err)

	events.AssertExpectations(t)
	events.AssertNumberOfCalls(t, "Confirmed", 1)
}

func TestSubscriptionService_Subscribe_StorageFailure(t *testing.T) {
	sender := &mockSender{}
	svc := NewSubscriptionService(brokenStorage{newMemoryStorage(t)}, sender, "http://localhost")

	_, err := svc.Subscribe(context.Background(), "Ursula", "ursula@example.com")
	se := requireServiceError(t, err, http.StatusInternalServerError)
	assert.ErrorIs(t, se, errStorageDown)
}

func TestSubscriptionService_Confirm_UnknownToken(t *testing.T) {
	svc := NewSubscriptionService(newMemoryStorage(t), &mockSender{}, "http://localhost")

	_, err := svc.Confirm(context.Background(), "does-not-exist")
	requireServiceError(t, err, http.StatusUnauthorized)

	_, err = svc.Confirm(context.Background(), "  ")
	requireServiceError(t, err, http.StatusBadRequest)
}
