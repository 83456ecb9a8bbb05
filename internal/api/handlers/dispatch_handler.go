package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// Dispatcher hands patients to clinician sessions
type Dispatcher interface {
	NextForSession(ctx context.Context, sessionID string) (*entities.PatientRegistration, error)
	CompleteCurrent(ctx context.Context, sessionID, medicine, test string) (*entities.VisitRecord, error)
	Release(ctx context.Context, sessionID string) error
	Snapshot(ctx context.Context) (*entities.QueueSnapshot, error)
}

// DispatchHandler handles clinician dispatch requests
type DispatchHandler struct {
	dispatcher Dispatcher
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatcher Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

func sessionID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(sessionHeader))
	if id == "" {
		return "", apperrors.NewValidationError(sessionHeader + " header is required")
	}
	return id, nil
}

// Next handles POST /api/dispatch/next. An empty queue answers 204.
func (h *DispatchHandler) Next(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	patient, err := h.dispatcher.NextForSession(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if patient == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondWithJSON(w, http.StatusOK, patient)
}

type completeRequest struct {
	Medicine string `json:"medicine"`
	Test     string `json:"test"`
}

// Complete handles POST /api/dispatch/complete. The body is optional.
func (h *DispatchHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	var req completeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondWithAppError(w, r, err)
			return
		}
	}

	visit, err := h.dispatcher.CompleteCurrent(r.Context(), id, req.Medicine, req.Test)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, visit)
}

// Release handles POST /api/dispatch/release
func (h *DispatchHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	if err := h.dispatcher.Release(r.Context(), id); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Queue handles GET /api/dispatch/queue
func (h *DispatchHandler) Queue(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.dispatcher.Snapshot(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}
