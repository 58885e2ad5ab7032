package observability

import (
	"context"
	"subscriber/internal/models"
	"subscriber/internal/storage"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("subscriber/storage")
	meter := otel.Meter("subscriber/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := s.startSpan(ctx, "CreateUser", attribute.String("user_id", user.ID))
	start := time.Now()
	err := s.inner.CreateUser(ctx, user)
	s.record(ctx, span, "CreateUser", start, err)
	return err
}

func (s *InstrumentedStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "GetUser", attribute.String("user_id", id))
	start := time.Now()
	result, err := s.inner.GetUser(ctx, id)
	s.record(ctx, span, "GetUser", start, err)
	return result, err
}

// GetUserByEmail does not put the address on the span.
func (s *InstrumentedStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "GetUserByEmail")
	start := time.Now()
	result, err := s.inner.GetUserByEmail(ctx, email)
	s.record(ctx, span, "GetUserByEmail", start, err)
	return result, err
}

func (s *InstrumentedStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	ctx, span := s.startSpan(ctx, "ListUsers")
	start := time.Now()
	result, err := s.inner.ListUsers(ctx)
	span.SetAttributes(attribute.Int("result.count", len(result)))
	s.record(ctx, span, "ListUsers", start, err)
	return result, err
}

func (s *InstrumentedStorage) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, span := s.startSpan(ctx, "UpdateUser", attribute.String("user_id", user.ID))
	start := time.Now()
	err := s.inner.UpdateUser(ctx, user)
	s.record(ctx, span, "UpdateUser", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteUser(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "DeleteUser", attribute.String("user_id", id))
	start := time.Now()
	err := s.inner.DeleteUser(ctx, id)
	s.record(ctx, span, "DeleteUser", start, err)
	return err
}

func (s *InstrumentedStorage) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	ctx, span := s.startSpan(ctx, "CreateSubscriber", attribute.String("subscriber_id", sub.ID))
	start := time.Now()
	err := s.inner.CreateSubscriber(ctx, sub)
	s.record(ctx, span, "CreateSubscriber", start, err)
	return err
}

func (s *InstrumentedStorage) GetSubscriberByToken(ctx context.Context, tokenHash string) (*models.Subscriber, error) {
	ctx, span := s.startSpan(ctx, "GetSubscriberByToken")
	start := time.Now()
	result, err := s.inner.GetSubscriberByToken(ctx, tokenHash)
	s.record(ctx, span, "GetSubscriberByToken", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	ctx, span := s.startSpan(ctx, "GetSubscriberByEmail")
	start := time.Now()
	result, err := s.inner.GetSubscriberByEmail(ctx, email)
	s.record(ctx, span, "GetSubscriberByEmail", start, err)
	return result, err
}

func (s *InstrumentedStorage) ConfirmSubscriber(ctx context.Context, id string, at time.Time) error {
	ctx, span := s.startSpan(ctx, "ConfirmSubscriber", attribute.String("subscriber_id", id))
	start := time.Now()
	err := s.inner.ConfirmSubscriber(ctx, id, at)
	s.record(ctx, span, "ConfirmSubscriber", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteSubscriber(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "DeleteSubscriber", attribute.String("subscriber_id", id))
	start := time.Now()
	err := s.inner.DeleteSubscriber(ctx, id)
	s.record(ctx, span, "DeleteSubscriber", start, err)
	return err
}

func (s *InstrumentedStorage) ListSubscribers(ctx context.Context) ([]*models.Subscriber, error) {
	ctx, span := s.startSpan(ctx, "ListSubscribers")
	start := time.Now()
	result, err := s.inner.ListSubscribers(ctx)
	span.SetAttributes(attribute.Int("result.count", len(result)))
	s.record(ctx, span, "ListSubscribers", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
