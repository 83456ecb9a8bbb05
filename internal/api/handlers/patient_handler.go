package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// RegistrationService is the intake API used by PatientHandler
type RegistrationService interface {
	Register(ctx context.Context, req *entities.RegistrationRequest) (*entities.RegistrationResult, error)
	Lookup(ctx context.Context, mrn string) (*entities.PatientHistory, error)
	Visits(ctx context.Context) ([]*entities.VisitRecord, error)
}

// SeverityEditor changes or removes active registrations
type SeverityEditor interface {
	UpdateSeverity(ctx context.Context, mrn, arrival string, category entities.Category) (*entities.PatientRegistration, error)
	Withdraw(ctx context.Context, mrn, arrival string) error
}

// PatientHandler handles registration and patient record requests
type PatientHandler struct {
	registrations RegistrationService
	editor        SeverityEditor
}

// NewPatientHandler creates a new patient handler
func NewPatientHandler(registrations RegistrationService, editor SeverityEditor) *PatientHandler {
	return &PatientHandler{
		registrations: registrations,
		editor:        editor,
	}
}

// Register handles POST /api/patients
func (h *PatientHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req entities.RegistrationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.registrations.Register(r.Context(), &req)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// GetPatient handles GET /api/patients/{mrn}
func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	history, err := h.registrations.Lookup(r.Context(), r.PathValue("mrn"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, history)
}

type severityRequest struct {
	ArrivalTimestamp string `json:"arrivalTimestamp"`
	Category         string `json:"category"`
}

// UpdateSeverity handles PATCH /api/patients/{mrn}/severity
func (h *PatientHandler) UpdateSeverity(w http.ResponseWriter, r *http.Request) {
	var req severityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ArrivalTimestamp) == "" {
		respondWithAppError(w, r, apperrors.NewValidationError("arrivalTimestamp is required"))
		return
	}

	category, err := entities.ParseCategory(req.Category)
	if err != nil {
		respondWithAppError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	updated, err := h.editor.UpdateSeverity(r.Context(), r.PathValue("mrn"), req.ArrivalTimestamp, category)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

// Withdraw handles DELETE /api/patients/{mrn}?arrival=...
func (h *PatientHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	arrival := r.URL.Query().Get("arrival")
	if strings.TrimSpace(arrival) == "" {
		respondWithAppError(w, r, apperrors.NewValidationError("arrival query parameter is required"))
		return
	}

	if err := h.editor.Withdraw(r.Context(), r.PathValue("mrn"), arrival); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListVisits handles GET /api/visits
func (h *PatientHandler) ListVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := h.registrations.Visits(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"visits": visits,
		"count":  len(visits),
	})
}
