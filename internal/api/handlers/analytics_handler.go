package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

// AnalyticsService computes dashboard aggregates
type AnalyticsService interface {
	Dashboard(ctx context.Context, date string) (*entities.Dashboard, error)
	SeverityCounts(ctx context.Context) (entities.SeverityCounts, error)
	WeekdayBreakdown(ctx context.Context) (entities.WeekdayBreakdown, error)
	TimeHistogram(ctx context.Context) (entities.TimeHistogram, error)
}

// AnalyticsHandler handles dashboard requests
type AnalyticsHandler struct {
	analytics AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analytics AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Dashboard handles GET /api/analytics/dashboard?date=YYYY-MM-DD
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.analytics.Dashboard(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dashboard)
}

// Severity handles GET /api/analytics/severity
func (h *AnalyticsHandler) Severity(w http.ResponseWriter, r *http.Request) {
	counts, err := h.analytics.SeverityCounts(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, counts)
}

// Weekdays handles GET /api/analytics/weekdays
func (h *AnalyticsHandler) Weekdays(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.analytics.WeekdayBreakdown(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, breakdown)
}

// Times handles GET /api/analytics/times
func (h *AnalyticsHandler) Times(w http.ResponseWriter, r *http.Request) {
	hist, err := h.analytics.TimeHistogram(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, hist)
}
