package providers

import (
	"context"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to dashboard
// notifications
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.SeverityEvent) error

	// Subscribe subscribes to events on a channel until ctx is done
	Subscribe(ctx context.Context, channel string) (<-chan *entities.SeverityEvent, error)

	// Unsubscribe drops every subscriber of a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannelSeverityUpdates carries severityUpdated events
const EventChannelSeverityUpdates = "triage:severity"
