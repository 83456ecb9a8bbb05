package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// sessionHeader carries the clinician session id on dispatch requests
const sessionHeader = "X-Session-ID"

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// statusFor maps an application error type to an HTTP status
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeNoAssignment:
		return http.StatusConflict
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError writes err with the status of its AppError type.
// Internal details are logged, never returned.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := statusFor(appErr.Type)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	if appErr.Type == apperrors.ErrorTypeInternal {
		respondWithError(w, status, "internal server error")
		return
	}

	respondWithJSON(w, status, map[string]string{
		"error": appErr.Message,
		"code":  string(appErr.Type),
	})
}

// decodeJSON reads a single JSON object from the request body
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}
