package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"subscriber/internal/models"
	"subscriber/internal/notify"
	"subscriber/internal/storage"
	"time"
)

const confirmationSubject = "Welcome!"

// SubscriptionService manages newsletter sign-ups and their confirmation
type SubscriptionService struct {
	storage storage.Storage
	sender  notify.Sender
	baseURL string
	now     func() time.Time
	events  SubscriptionEvents
}

// SubscriptionOption configures a SubscriptionService.
type SubscriptionOption func(*SubscriptionService)

// WithSubscriptionEvents reports subscription outcomes to events.
func WithSubscriptionEvents(events SubscriptionEvents) SubscriptionOption {
	return func(s *SubscriptionService) {
		if events != nil {
			s.events = events
		}
	}
}

// NewSubscriptionService creates a subscription service. baseURL is the
// public address confirmation links point at.
func NewSubscriptionService(store storage.Storage, sender notify.Sender, baseURL string, opts ...SubscriptionOption) *SubscriptionService {
	s := &SubscriptionService{
		storage: store,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
		events:  noopEvents{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe validates the form input, stores a pending subscriber and emails
// a confirmation link. If the email cannot be sent the subscriber is removed.
func (s *SubscriptionService) Subscribe(ctx context.Context, name, email string) (*models.Subscriber, error) {
	subName, err := models.ParseSubscriberName(name)
	if err != nil {
		return nil, NewInvalidRequestError("invalid subscriber name", err)
	}
	subEmail, err := models.ParseSubscriberEmail(email)
	if err != nil {
		return nil, NewInvalidRequestError("invalid subscriber email", err)
	}

	token, err := models.GenerateConfirmationToken()
	if err != nil {
		return nil, NewInternalError("failed to generate confirmation token", err)
	}

	sub := models.NewSubscriber(subName, subEmail, models.HashToken(token))
	sub.CreatedAt = s.now()
	if err := s.storage.CreateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, NewConflictError("this email is already subscribed")
		}
		return nil, NewInternalError("failed to store subscriber", err)
	}

	link := s.confirmationLink(token)
	html := fmt.Sprintf(`Welcome to our newsletter!<br />Click <a href="%s">here</a> to confirm your subscription.`, link)
	text := fmt.Sprintf("Welcome to our newsletter!\nVisit %s to confirm your subscription.", link)
	if err := s.sender.SendEmail(ctx, subEmail, confirmationSubject, html, text); err != nil {
		// Drop the pending row so the address can sign up again.
		if delErr := s.storage.DeleteSubscriber(context.WithoutCancel(ctx), sub.ID); delErr != nil {
			slog.ErrorContext(ctx, "Failed to remove unconfirmed subscriber",
				"subscriber_id", sub.ID, "error", delErr)
		}
		s.events.EmailFailed(ctx)
		return nil, NewInternalError("failed to send confirmation email", err)
	}

	s.events.Subscribed(ctx)
	slog.InfoContext(ctx, "Subscriber added", "subscriber_id", sub.ID)
	return sub, nil
}

// Confirm marks the subscriber owning token as confirmed. Confirming twice is
// not an error.
func (s *SubscriptionService) Confirm(ctx context.Context, token string) (*models.Subscriber, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewInvalidRequestError("confirmation token is required", nil)
	}

	sub, err := s.storage.GetSubscriberByToken(ctx, models.HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewUnauthorizedError("unknown confirmation token")
		}
		return nil, NewInternalError("failed to look up subscription", err)
	}
	if sub.Status == models.SubscriptionConfirmed {
		return sub, nil
	}

	at := s.now()
	if err := s.storage.ConfirmSubscriber(ctx, sub.ID, at); err != nil {
		return nil, NewInternalError("failed to confirm subscription", err)
	}
	sub.Status = models.SubscriptionConfirmed
	sub.ConfirmedAt = &at

	s.events.Confirmed(ctx)
	slog.InfoContext(ctx, "Subscription confirmed", "subscriber_id", sub.ID)
	return sub, nil
}

func (s *SubscriptionService) confirmationLink(token string) string {
	return s.baseURL + "/subscriptions/confirm?token=" + url.QueryEscape(token)
}
