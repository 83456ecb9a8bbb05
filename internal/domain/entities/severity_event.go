package entities

import (
	"time"

	"github.com/google/uuid"
)

// SeverityEventType represents the type of a dashboard notification
type SeverityEventType string

const (
	SeverityEventTypeUpdated SeverityEventType = "severityUpdated"
)

// SeverityEvent is broadcast to dashboard subscribers when a registration's
// category changes. Delivery is at most once and never replayed.
type SeverityEvent struct {
	ID               string            `json:"id"`
	EventType        SeverityEventType `json:"event_type"`
	MRN              string            `json:"mrn"`
	ArrivalTimestamp string            `json:"arrivalTimestamp"`
	NewCategory      Category          `json:"newCategory"`
	Color            string            `json:"color"`
	Timestamp        time.Time         `json:"timestamp"`
}

// NewSeverityUpdatedEvent creates a severityUpdated event for a registration
func NewSeverityUpdatedEvent(key RegistrationKey, category Category) *SeverityEvent {
	return &SeverityEvent{
		ID:               uuid.New().String(),
		EventType:        SeverityEventTypeUpdated,
		MRN:              key.MRN,
		ArrivalTimestamp: key.ArrivalTimestamp,
		NewCategory:      category,
		Color:            ColorFor(category),
		Timestamp:        time.Now(),
	}
}
