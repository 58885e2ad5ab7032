// Package notify delivers transactional email through an HTTP email API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"subscriber/internal/models"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Sender sends a single email.
type Sender interface {
	SendEmail(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error
}

type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// EmailClient posts messages to a Postmark-compatible /email endpoint.
type EmailClient struct {
	baseURL   string
	sender    models.SubscriberEmail
	authToken string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewEmailClient builds a client from config. Outbound requests are traced
// and paced to cfg.RequestsPerSecond.
func NewEmailClient(cfg models.EmailConfig) (*EmailClient, error) {
	sender, err := models.ParseSubscriberEmail(cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("invalid sender email: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &EmailClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		sender:    sender,
		authToken: cfg.AuthToken,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: limiter,
	}, nil
}

// SendEmail delivers one message. Any non-2xx response is an error.
func (c *EmailClient) SendEmail(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("email send throttled: %w", err)
		}
	}

	body, err := json.Marshal(sendEmailRequest{
		From:     c.sender.String(),
		To:       recipient.String(),
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.authToken)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	io.Copy(io.Discard, resp.Body)

	slog.Debug("Email sent", "subject", subject, "duration", time.Since(start))
	return nil
}

// LogSender logs messages instead of sending them. It is used when no email
// API is configured.
type LogSender struct{}

func (LogSender) SendEmail(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error {
	slog.InfoContext(ctx, "Email delivery disabled, logging message",
		"to", recipient.String(),
		"subject", subject,
		"body", textBody,
	)
	return nil
}

// NewSender returns an EmailClient when cfg.BaseURL is set and a LogSender otherwise.
func NewSender(cfg models.EmailConfig) (Sender, error) {
	if cfg.BaseURL == "" {
		return LogSender{}, nil
	}
	return NewEmailClient(cfg)
}
