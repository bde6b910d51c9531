package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// TracerName — instrumentation scope воркера.
const TracerName = "harvester"

// Экспортеры трейсов.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlphttp"
)

// TracingConfig — настройки трейсинга.
type TracingConfig struct {
	Exporter    string
	Endpoint    string
	ServiceName string
	WorkerID    string
}

// Tracing — tracer и функция остановки провайдера.
type Tracing struct {
	Tracer   trace.Tracer
	shutdown func(context.Context) error
}

// NoopTracing возвращает трейсинг, который ничего не записывает.
func NoopTracing() *Tracing {
	return &Tracing{
		Tracer:   nooptrace.NewTracerProvider().Tracer(TracerName),
		shutdown: func(context.Context) error { return nil },
	}
}

// InitTracing настраивает OpenTelemetry. Exporter "none" или пустой даёт no-op.
func InitTracing(ctx context.Context, cfg TracingConfig) (*Tracing, error) {
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return NoopTracing(), nil
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "harvester-worker"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("harvester.worker_id", cfg.WorkerID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{
		Tracer:   tp.Tracer(TracerName),
		shutdown: tp.Shutdown,
	}, nil
}

// Shutdown сбрасывает буфер и останавливает провайдер.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLPHTTP:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown exporter: %s (supported: none, stdout, otlphttp)", cfg.Exporter)
	}
}

// TaskAttributes — атрибуты span для task.
func TaskAttributes(id, taskType, url string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("task.id", id),
		attribute.String("task.type", taskType),
		attribute.String("task.url", url),
	}
}
