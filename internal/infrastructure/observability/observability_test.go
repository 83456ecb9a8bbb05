package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsRecorders(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := observability.InitMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	observability.RecordAssignment(ctx, metrics, entities.CategoryCritical)
	observability.RecordAssignment(ctx, metrics, entities.CategoryLow)
	observability.RecordCompletion(ctx, metrics, entities.CategoryLow)
	observability.RecordClassifierFallback(ctx, metrics, "unavailable")
	observability.RecordExpiredSessions(ctx, metrics, 0)
	observability.RecordExpiredSessions(ctx, metrics, 3)
	observability.RecordRequestMetric(ctx, metrics, "POST", "/api/dispatch/next", 200, 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "dispatch.assignments"))
	assert.Equal(t, int64(1), sumOf(t, rm, "dispatch.completions"))
	assert.Equal(t, int64(1), sumOf(t, rm, "classifier.fallbacks"))
	assert.Equal(t, int64(3), sumOf(t, rm, "dispatch.expired_sessions"))
	assert.Equal(t, int64(1), sumOf(t, rm, "http.server.request.count"))
}

func TestRecordersAcceptNilMetrics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		observability.RecordAssignment(ctx, nil, entities.CategoryModerate)
		observability.RecordCacheHit(ctx, nil, "prediction")
		observability.RecordDBMetric(ctx, nil, "patients.find_all", time.Millisecond)
		observability.RecordExpiredSessions(ctx, nil, 2)
	})
}

func TestLoggerFromContextWithoutSpan(t *testing.T) {
	logger := observability.LoggerFromContext(context.Background())
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Debug().Msg("no span") })
}
