package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/classifier"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/database"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/events"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/handlers"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/routes"
	"github.com/zatekoja/triage-dispatch/backend/internal/application/services"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/classifierapi"
)

func newTestRouter(t *testing.T, health *handlers.HealthHandler) http.Handler {
	t.Helper()
	patientRepo := database.NewMemoryPatientAdapter()
	visitRepo := database.NewMemoryVisitAdapter()
	ledger := services.NewBookingLedger(16, false)
	bus := events.NewLocalEventBus()
	t.Cleanup(func() { _ = bus.Close() })

	registrations := services.NewRegistrationService(patientRepo, visitRepo, ledger, nil, nil)
	queue := services.NewDispatchQueue(patientRepo, visitRepo, ledger, bus, nil, services.DispatchConfig{})
	analytics := services.NewAnalyticsService(patientRepo, visitRepo, nil)

	router := routes.NewRouter(
		handlers.NewPatientHandler(registrations, queue),
		handlers.NewDispatchHandler(queue),
		handlers.NewBookingHandler(registrations),
		handlers.NewAnalyticsHandler(analytics),
		handlers.NewSSEHandler(bus),
		handlers.NewWebSocketHub(bus, []string{"*"}),
		health,
		nil,
		[]string{"*"},
	)
	return router.SetupRoutes()
}

func TestRouter_Health(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		handler := newTestRouter(t, nil)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var report handlers.HealthReport
		require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
		assert.Equal(t, "ok", report.Status)
		assert.Empty(t, report.Dependencies)
	})

	t.Run("reports the classifier breaker and a failed dependency", func(t *testing.T) {
		prediction := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer prediction.Close()

		health := handlers.NewHealthHandler()
		health.Register("classifier", classifier.NewHTTPClassifier(
			classifierapi.NewClient(prediction.URL, time.Second),
			classifier.DefaultBreakerSettings(),
		))
		health.Register("redis", handlers.CheckFunc(func(ctx context.Context) error {
			return errors.New("connection refused")
		}))
		handler := newTestRouter(t, health)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var report handlers.HealthReport
		require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
		assert.Equal(t, "degraded", report.Status)
		assert.Equal(t, handlers.DependencyStatus{Status: "ok", State: "closed"}, report.Dependencies["classifier"])
		assert.Equal(t, "down", report.Dependencies["redis"].Status)
		assert.Equal(t, "connection refused", report.Dependencies["redis"].Error)
	})
}

func TestRouter_RegisterThenDispatch(t *testing.T) {
	handler := newTestRouter(t, nil)

	body := `{"name":"Ada","age":40,"gender":"F","complaint":"chest pain","category":"Critical","scheduledArrival":"2024-03-04 09:30:00"}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result entities.RegistrationResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	require.NotNil(t, result.Patient)

	req := httptest.NewRequest(http.MethodPost, "/api/dispatch/next", nil)
	req.Header.Set("X-Session-ID", "clinician-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var next entities.PatientRegistration
	require.NoError(t, json.NewDecoder(w.Body).Decode(&next))
	assert.Equal(t, result.Patient.MRN, next.MRN)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bookings/2024-03-04", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"booked":1`)
}

func TestRouter_AnalyticsSupportsConditionalRequests(t *testing.T) {
	handler := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analytics/severity", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/severity", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	handler := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dispatch/next", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
