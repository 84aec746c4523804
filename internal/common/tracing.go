package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// SetupTracing installs a global TracerProvider for cfg.Exporter. The stdout
// exporter writes to w. With "none" nothing is installed and the returned
// shutdown is a no-op.
func SetupTracing(ctx context.Context, cfg TracingConfig, w io.Writer, logger *slog.Logger) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	var exp sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	default:
		return noop, ConfigError(fmt.Sprintf("unknown tracing exporter %q", cfg.Exporter), ErrInvalidInput)
	}
	if err != nil {
		return noop, ConfigError("create trace exporter", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "inbox-poller"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(name))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", "exporter", cfg.Exporter, "service", name)
	return tp.Shutdown, nil
}
