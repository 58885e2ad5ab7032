package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SubscriptionMetrics counts newsletter sign-up outcomes. It satisfies
// service.SubscriptionEvents.
type SubscriptionMetrics struct {
	events metric.Int64Counter
}

// NewSubscriptionMetrics registers the subscription counter on mp.
func NewSubscriptionMetrics(mp metric.MeterProvider) (*SubscriptionMetrics, error) {
	events, err := mp.Meter("subscriber/subscriptions").Int64Counter(
		"subscriptions.events",
		metric.WithDescription("Newsletter subscription lifecycle events by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &SubscriptionMetrics{events: events}, nil
}

func (m *SubscriptionMetrics) add(ctx context.Context, outcome string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Subscribed records a pending subscriber whose confirmation email went out.
func (m *SubscriptionMetrics) Subscribed(ctx context.Context) { m.add(ctx, "subscribed") }

// Confirmed records a first-time confirmation.
func (m *SubscriptionMetrics) Confirmed(ctx context.Context) { m.add(ctx, "confirmed") }

// EmailFailed records a sign-up rolled back because the email could not be sent.
func (m *SubscriptionMetrics) EmailFailed(ctx context.Context) { m.add(ctx, "email_failed") }
