// Package tracing configures OpenTelemetry span export over OTLP/HTTP.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/JaimeStill/pallor/pkg/lifecycle"
)

// Service owns the tracer provider. When tracing is disabled it hands out
// no-op tracers and Start registers nothing.
type Service struct {
	provider *sdktrace.TracerProvider
	tracers  trace.TracerProvider
	logger   *slog.Logger
}

// New builds the tracer provider described by cfg. version is recorded as
// the service.version resource attribute.
func New(ctx context.Context, cfg *Config, version string, logger *slog.Logger) (*Service, error) {
	logger = logger.With("system", "tracing")

	if !cfg.Enabled {
		return &Service{
			tracers: noop.NewTracerProvider(),
			logger:  logger,
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "sample_rate", cfg.SampleRate)

	return &Service{
		provider: provider,
		tracers:  provider,
		logger:   logger,
	}, nil
}

// Tracer returns a named tracer.
func (s *Service) Tracer(name string) trace.Tracer {
	return s.tracers.Tracer(name)
}

// Enabled reports whether spans are exported.
func (s *Service) Enabled() bool {
	return s.provider != nil
}

// Start registers a shutdown hook that flushes pending spans.
func (s *Service) Start(lc *lifecycle.Coordinator) error {
	if s.provider == nil {
		return nil
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := s.Shutdown(context.Background()); err != nil {
			s.logger.Error("tracing shutdown failed", "error", err)
			return
		}
		s.logger.Info("tracing shutdown complete")
	})

	return nil
}

// Shutdown flushes and stops the provider. It is a no-op when disabled.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(ctx)
}
