package routes

import (
	"net/http"

	"github.com/zatekoja/triage-dispatch/backend/internal/api/handlers"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/middleware"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	patientHandler   *handlers.PatientHandler
	dispatchHandler  *handlers.DispatchHandler
	bookingHandler   *handlers.BookingHandler
	analyticsHandler *handlers.AnalyticsHandler
	sseHandler       *handlers.SSEHandler
	wsHub            *handlers.WebSocketHub
	healthHandler    *handlers.HealthHandler

	metrics        *observability.Metrics
	allowedOrigins []string
}

// NewRouter creates a new router
func NewRouter(
	patientHandler *handlers.PatientHandler,
	dispatchHandler *handlers.DispatchHandler,
	bookingHandler *handlers.BookingHandler,
	analyticsHandler *handlers.AnalyticsHandler,
	sseHandler *handlers.SSEHandler,
	wsHub *handlers.WebSocketHub,
	healthHandler *handlers.HealthHandler,
	metrics *observability.Metrics,
	allowedOrigins []string,
) *Router {
	if healthHandler == nil {
		healthHandler = handlers.NewHealthHandler()
	}
	return &Router{
		mux:              http.NewServeMux(),
		patientHandler:   patientHandler,
		dispatchHandler:  dispatchHandler,
		bookingHandler:   bookingHandler,
		analyticsHandler: analyticsHandler,
		sseHandler:       sseHandler,
		wsHub:            wsHub,
		healthHandler:    healthHandler,
		metrics:          metrics,
		allowedOrigins:   allowedOrigins,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Registration
	r.mux.HandleFunc("POST /api/patients", r.patientHandler.Register)
	r.mux.HandleFunc("GET /api/patients/{mrn}", r.patientHandler.GetPatient)
	r.mux.HandleFunc("PATCH /api/patients/{mrn}/severity", r.patientHandler.UpdateSeverity)
	r.mux.HandleFunc("DELETE /api/patients/{mrn}", r.patientHandler.Withdraw)

	// Bookings
	r.mux.HandleFunc("GET /api/bookings/slots", r.bookingHandler.ListSlots)
	r.mux.HandleFunc("GET /api/bookings/{date}", r.bookingHandler.GetAvailability)

	// Dispatch
	r.mux.HandleFunc("POST /api/dispatch/next", r.dispatchHandler.Next)
	r.mux.HandleFunc("POST /api/dispatch/complete", r.dispatchHandler.Complete)
	r.mux.HandleFunc("POST /api/dispatch/release", r.dispatchHandler.Release)
	r.mux.HandleFunc("GET /api/dispatch/queue", r.dispatchHandler.Queue)

	// Dashboard reads are polled; ETag and gzip keep repeat polls cheap
	r.mux.Handle("GET /api/visits", middleware.ResponseOptimization(http.HandlerFunc(r.patientHandler.ListVisits)))
	r.mux.Handle("GET /api/analytics/dashboard", middleware.ResponseOptimization(http.HandlerFunc(r.analyticsHandler.Dashboard)))
	r.mux.Handle("GET /api/analytics/severity", middleware.ResponseOptimization(http.HandlerFunc(r.analyticsHandler.Severity)))
	r.mux.Handle("GET /api/analytics/weekdays", middleware.ResponseOptimization(http.HandlerFunc(r.analyticsHandler.Weekdays)))
	r.mux.Handle("GET /api/analytics/times", middleware.ResponseOptimization(http.HandlerFunc(r.analyticsHandler.Times)))

	// Live updates
	r.mux.HandleFunc("GET /api/stream/severity", r.sseHandler.StreamSeverityUpdates)
	r.mux.HandleFunc("GET /ws/severity", r.wsHub.ServeWS)

	var handler http.Handler = r.mux
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
