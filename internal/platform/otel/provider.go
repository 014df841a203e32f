// Package otel wires OpenTelemetry tracing for commands.
package otel

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/roundtable/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the trace exporter. Tracing stays off unless Endpoint is set
// and Enabled is true.
type Config struct {
	Endpoint string  `env:"OTEL_ENDPOINT"`
	Enabled  bool    `env:"OTEL_ENABLED" envDefault:"true"`
	Sample   float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// LoadConfig reads Config from ROUNDTABLE_OTEL_* variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Active reports whether cfg enables an exporter.
func (c Config) Active() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}

// Setup registers a global tracer provider for serviceName and returns its
// shutdown function. When cfg is not active the shutdown is a no-op and
// tracers stay the global no-op implementation.
func Setup(ctx context.Context, serviceName string, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Active() {
		return noop, nil
	}
	if cfg.Sample < 0 || cfg.Sample > 1 {
		return noop, fmt.Errorf("otel sample ratio %v outside [0, 1]", cfg.Sample)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(strings.TrimSpace(cfg.Endpoint)))
	if err != nil {
		return noop, fmt.Errorf("otel exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Sample))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
