package handlers

import (
	"net/http"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

// BookingService reports booked arrivals and per-date capacity
type BookingService interface {
	BookedSlots() []string
	Availability(date string) (*entities.DateAvailability, error)
}

// BookingHandler handles booking calendar requests
type BookingHandler struct {
	bookings BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// ListSlots handles GET /api/bookings/slots
func (h *BookingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots := h.bookings.BookedSlots()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"slots": slots,
		"count": len(slots),
	})
}

// GetAvailability handles GET /api/bookings/{date}
func (h *BookingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.bookings.Availability(r.PathValue("date"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, availability)
}
