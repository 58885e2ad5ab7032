package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Subscription status values.
const (
	SubscriptionPending   = "pending_confirmation"
	SubscriptionConfirmed = "confirmed"
)

// MaxSubscriberNameLength is counted in characters, not bytes.
const MaxSubscriberNameLength = 256

const forbiddenNameCharacters = `/()"<>\{}`

// Subscriber is a newsletter subscription. The confirmation token is stored
// only as its SHA-256 hex digest.
type Subscriber struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	TokenHash   string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// SubscriberName is a validated display name.
type SubscriberName string

// ParseSubscriberName trims s and rejects empty names, names longer than
// MaxSubscriberNameLength characters and names containing any of / ( ) " < > \ { }.
func ParseSubscriberName(s string) (SubscriberName, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", errors.New("subscriber name cannot be empty")
	}
	// Length is in runes; a base letter plus combining mark counts as two.
	if utf8.RuneCountInString(trimmed) > MaxSubscriberNameLength {
		return "", fmt.Errorf("subscriber name cannot exceed %d characters", MaxSubscriberNameLength)
	}
	if strings.ContainsAny(trimmed, forbiddenNameCharacters) {
		return "", fmt.Errorf("subscriber name contains a forbidden character")
	}
	return SubscriberName(trimmed), nil
}

func (n SubscriberName) String() string { return string(n) }

// SubscriberEmail is a validated, lowercased email address.
type SubscriberEmail string

// ParseSubscriberEmail validates s as a bare address whose domain contains a dot.
func ParseSubscriberEmail(s string) (SubscriberEmail, error) {
	if err := ValidateEmail(s); err != nil {
		return "", err
	}
	return SubscriberEmail(strings.ToLower(strings.TrimSpace(s))), nil
}

func (e SubscriberEmail) String() string { return string(e) }

// ValidateEmail accepts only a bare address (no display name) with a
// non-empty local part and a dotted domain.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email cannot be empty")
	}
	if len(s) > MaxEmailLength {
		return fmt.Errorf("email cannot exceed %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return errors.New("email is not valid")
	}
	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	if at < 1 || !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return errors.New("email is not valid")
	}
	return nil
}

// NewSubscriber creates a pending subscription for a parsed name and email.
func NewSubscriber(name SubscriberName, email SubscriberEmail, tokenHash string) *Subscriber {
	return &Subscriber{
		ID:        uuid.NewString(),
		Name:      name.String(),
		Email:     email.String(),
		Status:    SubscriptionPending,
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
	}
}

// GenerateConfirmationToken returns a random 32 character url-safe token.
func GenerateConfirmationToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken computes the SHA-256 hex digest of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
