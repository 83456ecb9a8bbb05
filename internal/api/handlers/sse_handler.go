package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
)

// heartbeatInterval keeps idle dashboard streams open through proxies
const heartbeatInterval = 30 * time.Second

// SSEHandler handles Server-Sent Events for real-time severity updates
type SSEHandler struct {
	eventBus  providers.EventBus
	clients   map[chan *entities.SeverityEvent]struct{}
	mu        sync.RWMutex
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		clients:   make(map[chan *entities.SeverityEvent]struct{}),
		heartbeat: heartbeatInterval,
	}
}

// StreamSeverityUpdates handles GET /api/stream/severity
func (h *SSEHandler) StreamSeverityUpdates(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventChan, err := h.eventBus.Subscribe(r.Context(), providers.EventChannelSeverityUpdates)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to severity updates")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan *entities.SeverityEvent, 10)
	h.registerClient(clientChan)
	defer h.unregisterClient(clientChan)

	h.sendEvent(w, "connected", map[string]interface{}{
		"channel":   providers.EventChannelSeverityUpdates,
		"timestamp": time.Now(),
	})
	flusher.Flush()

	go h.forwardEvents(r.Context(), eventChan, clientChan)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Msg("Client disconnected from severity stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event := <-clientChan:
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

// forwardEvents forwards events from the event bus to a client channel
func (h *SSEHandler) forwardEvents(ctx context.Context, eventChan <-chan *entities.SeverityEvent, clientChan chan<- *entities.SeverityEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			select {
			case clientChan <- event:
			default:
				// slow client
			}
		}
	}
}

func (h *SSEHandler) registerClient(clientChan chan *entities.SeverityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[clientChan] = struct{}{}
	log.Debug().Int("clients", len(h.clients)).Msg("SSE client registered")
}

func (h *SSEHandler) unregisterClient(clientChan chan *entities.SeverityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, clientChan)
	log.Debug().Int("clients", len(h.clients)).Msg("SSE client unregistered")
}

// sendEvent sends an SSE event to the client
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients for debugging
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
