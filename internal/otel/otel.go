// Package otel wires OpenTelemetry tracing for analysis runs and upstream fetches.
package otel

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is reported as the service.name resource attribute
const ServiceName = "curation-signal-optimizer"

// Options controls the exporter and sampling
type Options struct {
	// Endpoint is the OTLP/HTTP collector host:port; empty disables tracing
	Endpoint string

	// SampleRatio is the fraction of root spans kept, clamped to [0, 1]
	SampleRatio float64

	// ShutdownTimeout bounds the final flush (default 5s)
	ShutdownTimeout time.Duration
}

func (o Options) sampler() sdktrace.Sampler {
	switch {
	case o.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case o.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.SampleRatio))
	}
}

// InitTracer installs a batching OTLP/HTTP tracer provider and the W3C trace
// context propagator. Without an endpoint the global no-op provider stays in
// place. The returned func flushes and shuts the provider down.
func InitTracer(opts Options) func() {
	if opts.Endpoint == "" {
		logrus.Debug("Tracing disabled: no OTLP endpoint configured")
		return func() {}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		logrus.WithError(err).Warn("OTLP exporter unavailable, tracing disabled")
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(opts.sampler()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logrus.WithFields(logrus.Fields{
		"endpoint":     opts.Endpoint,
		"sample_ratio": opts.SampleRatio,
	}).Info("Tracing enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("Tracer shutdown failed")
		}
	}
}

// Tracer returns the service tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// Start opens a span named name carrying attrs.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span in ctx as failed. A nil err is ignored.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
