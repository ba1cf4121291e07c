package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config controls the export of traces. Tracing is opt-in.
type Config struct {
	// Enabled can switch tracing off even if an endpoint is set
	Enabled bool `env:"DLOCK_OTEL_ENABLED" envDefault:"true"`
	// Endpoint is the OTLP/HTTP url of the collector, e.g. http://localhost:4318
	Endpoint string `env:"DLOCK_OTEL_ENDPOINT"`
	// SampleRatio is the share of traces that are recorded (1 = all)
	SampleRatio float64 `env:"DLOCK_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// LoadConfigFromEnv reads the tracing configuration from the environment
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse telemetry env: %w", err)
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return Config{}, fmt.Errorf("DLOCK_OTEL_SAMPLE_RATIO must be between 0 and 1, got %v", cfg.SampleRatio)
	}
	return cfg, nil
}

// Active reports whether Setup will install a tracer provider
func (c Config) Active() bool {
	return c.Enabled && c.Endpoint != ""
}

// Setup initialises OpenTelemetry tracing for the given service.
//
// When the config is not active, Setup returns a no-op shutdown function and no
// global provider is registered; the otel default provider then drops all spans.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName string, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Active() {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("create otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// WriteMetrics writes all metrics of the process in the Prometheus text format.
// Go runtime and process metrics are included.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
