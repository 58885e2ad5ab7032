// Package observability wires OpenTelemetry tracing and metrics into the
// subscriber service. Traces go to stdout or an OTLP collector; metrics are
// exposed through the Prometheus exporter alongside the rate limiter's own
// collectors.
package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"subscriber/internal/models"
	"subscriber/internal/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceNamespace groups the subscriber API with its sibling newsletter
// services in trace and metric backends.
const ServiceNamespace = "newsletter"

// Provider owns the tracer and meter providers so they can be flushed on exit.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	promExporter   *prometheus.Exporter
}

// PrometheusExporter returns the exporter feeding the default registry, or
// nil when metrics are disabled.
func (p *Provider) PrometheusExporter() *prometheus.Exporter {
	return p.promExporter
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Setup builds the tracer and meter providers described by cfg and installs
// them as the global providers. The returned Provider must be shut down on
// exit.
func Setup(ctx context.Context, cfg *models.Config, ver version.Info) (*Provider, error) {
	res, err := newResource(ctx, cfg, ver)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{}

	if cfg.Observability.Tracing.Enabled {
		tp, err := setupTracing(ctx, res, cfg.Observability.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		p.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.Metrics.Enabled {
		promExporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		p.promExporter = promExporter
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)
		otel.SetMeterProvider(p.meterProvider)
	}

	return p, nil
}

// newResource describes this process: build identity plus the storage, auth
// and rate limit settings it runs with.
func newResource(ctx context.Context, cfg *models.Config, ver version.Info) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.Observability.ServiceName),
		semconv.ServiceNamespace(ServiceNamespace),
		semconv.ServiceVersion(ver.Version),
		semconv.ServiceInstanceID(ver.InstanceID),
		semconv.HostName(ver.Hostname),
		semconv.DeploymentEnvironment(environment()),
		attribute.String("git.commit", ver.GitCommit),
		attribute.String("build.date", ver.BuildDate),
		attribute.String("subscriber.storage.type", cfg.Storage.Type),
		attribute.Bool("subscriber.auth.enabled", cfg.Security.EnableAuth),
		attribute.Bool("subscriber.ratelimit.enabled", cfg.RateLimit.Enabled),
	}
	if cfg.RateLimit.Enabled {
		attrs = append(attrs,
			attribute.String("subscriber.ratelimit.backend", cfg.RateLimit.Backend),
			attribute.Int("subscriber.ratelimit.max_requests", cfg.RateLimit.MaxRequests),
			attribute.String("subscriber.ratelimit.window", cfg.RateLimit.Window.String()),
		)
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

func setupTracing(ctx context.Context, res *resource.Resource, cfg models.TracingConfig) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	), nil
}

// sampler follows the caller's sampling decision when a request arrives with
// a trace parent and applies rate to new traces.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1.0:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func environment() string {
	for _, key := range []string{"SUBSCRIBER_ENVIRONMENT", "ENVIRONMENT", "DEPLOYMENT_ENV"} {
		if env := os.Getenv(key); env != "" {
			return env
		}
	}
	return "development"
}
