package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/middleware"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
)

const (
	wsSendBuffer = 256
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

type wsClient struct {
	id   string
	send chan []byte
}

// WebSocketHub fans severity updates out to dashboard WebSocket clients. One
// event bus subscription serves every connection.
type WebSocketHub struct {
	eventBus providers.EventBus
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
}

// NewWebSocketHub creates a hub reading from eventBus. Browsers may only
// connect from allowedOrigins; clients that send no Origin are accepted.
func NewWebSocketHub(eventBus providers.EventBus, allowedOrigins []string) *WebSocketHub {
	return &WebSocketHub{
		eventBus: eventBus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Run forwards severity updates to every client until ctx is done
func (h *WebSocketHub) Run(ctx context.Context) error {
	events, err := h.eventBus.Subscribe(ctx, providers.EventChannelSeverityUpdates)
	if err != nil {
		return err
	}

	log.Info().Str("channel", providers.EventChannelSeverityUpdates).Msg("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case event, ok := <-events:
			if !ok {
				h.closeAll()
				return nil
			}
			h.broadcast(event)
		}
	}
}

func (h *WebSocketHub) broadcast(event *entities.SeverityEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("websocket: failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Warn().Str("client_id", client.id).Msg("websocket: client buffer full, dropping event")
		}
	}
}

func (h *WebSocketHub) register(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *WebSocketHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles GET /ws/severity
func (h *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket: upgrade failed")
		return
	}

	client := &wsClient{id: uuid.New().String(), send: make(chan []byte, wsSendBuffer)}
	h.register(client)
	log.Debug().Str("client_id", client.id).Msg("websocket: client connected")

	go h.writePump(client, conn)
	go h.readPump(client, conn)
}

// readPump discards client messages and detects disconnects
func (h *WebSocketHub) readPump(client *wsClient, conn *websocket.Conn) {
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writePump(client *wsClient, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
