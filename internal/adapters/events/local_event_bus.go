package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
)

// subscriberBuffer is the per-subscriber channel capacity. Events for a full
// subscriber are dropped.
const subscriberBuffer = 100

// LocalEventBus is an in-process EventBus for single-replica deployments
type LocalEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.SeverityEvent]struct{}
	closed      bool
}

// NewLocalEventBus creates a new in-process event bus
func NewLocalEventBus() providers.EventBus {
	return &LocalEventBus{
		subscribers: make(map[string]map[chan *entities.SeverityEvent]struct{}),
	}
}

// Publish delivers event to every current subscriber of channel
func (b *LocalEventBus) Publish(ctx context.Context, channel string, event *entities.SeverityEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("Subscriber channel full, dropping event")
		}
	}
	return nil
}

// Subscribe returns a channel receiving events until ctx is done
func (b *LocalEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.SeverityEvent, error) {
	eventChan := make(chan *entities.SeverityEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(eventChan)
		return eventChan, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.SeverityEvent]struct{})
	}
	b.subscribers[channel][eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *LocalEventBus) removeSubscriber(channel string, eventChan chan *entities.SeverityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, ok := b.subscribers[channel]
	if !ok {
		return
	}
	if _, ok := subscribers[eventChan]; !ok {
		return
	}
	delete(subscribers, eventChan)
	close(eventChan)
	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscriber of channel
func (b *LocalEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes every subscription. Later subscriptions receive a closed
// channel.
func (b *LocalEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
