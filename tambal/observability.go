package tambal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/odit-bit/tambal/tambal/config"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Telemetry holds what InitObservability started.
type Telemetry struct {
	// serves the prometheus registry, nil when prometheus is off
	Metrics  http.Handler
	shutdown []func(context.Context) error
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var shutdownErr error
	for _, fn := range t.shutdown {
		shutdownErr = errors.Join(shutdownErr, fn(ctx))
	}
	t.shutdown = nil
	return shutdownErr
}

// Initializes and configures OpenTelemetry for the application.
// Shutdown must be called on application exit.
func InitObservability(ctx context.Context, serviceName string, cfg config.ObserveConfig) (*Telemetry, error) {
	tel := &Telemetry{}
	if !cfg.Enable && !cfg.Prometheus {
		slog.Info("Observability is disabled")
		return tel, nil
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	// --- METER PROVIDER ---
	readers := []metric.Option{metric.WithResource(res)}
	if cfg.Prometheus {
		reg := prom.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		readers = append(readers, metric.WithReader(exporter))
		tel.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if cfg.Enable {
		exporter, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		readers = append(readers, metric.WithReader(metric.NewPeriodicReader(exporter)))
	}
	meterProvider := metric.NewMeterProvider(readers...)
	otel.SetMeterProvider(meterProvider)
	tel.shutdown = append(tel.shutdown, meterProvider.Shutdown)

	if _, err := registerMemoryGauge(); err != nil {
		slog.Error("memory gauge", "error", err)
	}

	// --- TRACER PROVIDER ---
	if cfg.Enable {
		exporter, err := newTraceExporter(ctx, cfg)
		if err != nil {
			tel.Shutdown(ctx)
			return nil, err
		}
		tracerProvider := trace.NewTracerProvider(
			trace.WithBatcher(exporter),
			trace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		tel.shutdown = append(tel.shutdown, tracerProvider.Shutdown)
	}

	// Set the global propagator to tracecontext.
	otel.SetTextMapPropagator(propagation.TraceContext{})
	slog.Info("Observability initialized", "exporter", cfg.Exporter, "otel", cfg.Enable, "prometheus", cfg.Prometheus)
	return tel, nil
}

func newMetricExporter(ctx context.Context, cfg config.ObserveConfig) (metric.Exporter, error) {
	if cfg.Exporter != "http" {
		slog.Debug("Initilize stdout metric")
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		return exp, nil
	}

	opts := []otlpmetrichttp.Option{}
	if cfg.MetricsEndpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.MetricsEndpoint))
	}
	if !cfg.Secure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp http metric exporter: %w", err)
	}
	return exp, nil
}

func newTraceExporter(ctx context.Context, cfg config.ObserveConfig) (trace.SpanExporter, error) {
	if cfg.Exporter != "http" {
		slog.Debug("Initilize stdout trace")
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		return exp, nil
	}

	otlpOpts := []otlptracehttp.Option{}
	if cfg.TraceEndpoint != "" {
		otlpOpts = append(otlpOpts, otlptracehttp.WithEndpoint(cfg.TraceEndpoint))
	}
	if !cfg.Secure {
		otlpOpts = append(otlpOpts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, otlpOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp http trace exporter: %w", err)
	}
	return exp, nil
}

// registerMemoryGauge reports the memory obtained from the OS.
func registerMemoryGauge() (otelmetric.Int64ObservableGauge, error) {
	meter := otel.Meter("tambal")
	return meter.Int64ObservableGauge(
		"tambal.process.memory_bytes",
		otelmetric.WithDescription("memory obtained from the OS in bytes"),
		otelmetric.WithInt64Callback(func(ctx context.Context, o otelmetric.Int64Observer) error {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			o.Observe(int64(stats.Sys))
			return nil
		}),
	)
}
