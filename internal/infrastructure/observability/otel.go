package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

const instrumentationName = "github.com/zatekoja/triage-dispatch/backend"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount        metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	DBQueryDuration     metric.Float64Histogram
	CacheHitCount       metric.Int64Counter
	CacheMissCount      metric.Int64Counter
	Assignments         metric.Int64Counter
	Completions         metric.Int64Counter
	SeverityUpdates     metric.Int64Counter
	ClassifierFallbacks metric.Int64Counter
	ExpiredSessions     metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing, metrics and log export
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, errors.Join(err, tracerProvider.Shutdown(ctx))
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, errors.Join(err, meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
	}

	// Set up log exporter
	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, errors.Join(err, meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	AttachLogExporter(loggerProvider.Logger(instrumentationName))

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			loggerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	dbQueryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitCount, err := meter.Int64Counter(
		"cache.hit.count",
		metric.WithDescription("Number of prediction cache hits"),
	)
	if err != nil {
		return nil, err
	}

	cacheMissCount, err := meter.Int64Counter(
		"cache.miss.count",
		metric.WithDescription("Number of prediction cache misses"),
	)
	if err != nil {
		return nil, err
	}

	assignments, err := meter.Int64Counter(
		"dispatch.assignments",
		metric.WithDescription("Number of patients assigned to clinician sessions"),
	)
	if err != nil {
		return nil, err
	}

	completions, err := meter.Int64Counter(
		"dispatch.completions",
		metric.WithDescription("Number of completed visits"),
	)
	if err != nil {
		return nil, err
	}

	severityUpdates, err := meter.Int64Counter(
		"dispatch.severity_updates",
		metric.WithDescription("Number of manual severity changes"),
	)
	if err != nil {
		return nil, err
	}

	classifierFallbacks, err := meter.Int64Counter(
		"classifier.fallbacks",
		metric.WithDescription("Number of registrations categorised Low because the classifier was unusable"),
	)
	if err != nil {
		return nil, err
	}

	expiredSessions, err := meter.Int64Counter(
		"dispatch.expired_sessions",
		metric.WithDescription("Number of assignments returned to the queue after session expiry"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:        requestCount,
		RequestDuration:     requestDuration,
		DBQueryDuration:     dbQueryDuration,
		CacheHitCount:       cacheHitCount,
		CacheMissCount:      cacheMissCount,
		Assignments:         assignments,
		Completions:         completions,
		SeverityUpdates:     severityUpdates,
		ClassifierFallbacks: classifierFallbacks,
		ExpiredSessions:     expiredSessions,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records an HTTP request
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordDBMetric records a store operation metric
func RecordDBMetric(ctx context.Context, metrics *Metrics, operation string, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
	}
	metrics.DBQueryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCacheHit records a cache hit
func RecordCacheHit(ctx context.Context, metrics *Metrics, cache string) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(ctx context.Context, metrics *Metrics, cache string) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}

// RecordAssignment records a patient handed to a session
func RecordAssignment(ctx context.Context, metrics *Metrics, category entities.Category) {
	if metrics == nil {
		return
	}
	metrics.Assignments.Add(ctx, 1, metric.WithAttributes(attribute.String("triage.category", string(category))))
}

// RecordCompletion records a completed visit
func RecordCompletion(ctx context.Context, metrics *Metrics, category entities.Category) {
	if metrics == nil {
		return
	}
	metrics.Completions.Add(ctx, 1, metric.WithAttributes(attribute.String("triage.category", string(category))))
}

// RecordSeverityUpdate records a manual category change
func RecordSeverityUpdate(ctx context.Context, metrics *Metrics, category entities.Category) {
	if metrics == nil {
		return
	}
	metrics.SeverityUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("triage.category", string(category))))
}

// RecordClassifierFallback records a registration that fell back to Low
func RecordClassifierFallback(ctx context.Context, metrics *Metrics, reason string) {
	if metrics == nil {
		return
	}
	metrics.ClassifierFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordExpiredSessions records assignments released by the expiry sweep
func RecordExpiredSessions(ctx context.Context, metrics *Metrics, n int) {
	if metrics == nil || n == 0 {
		return
	}
	metrics.ExpiredSessions.Add(ctx, int64(n))
}
