package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"pledgedesk/internal/logger"
	"pledgedesk/internal/models"
)

// Hub maintains the set of connected operator consoles and broadcasts
// engine notifications to them.
type Hub struct {
	mu          sync.Mutex
	connections map[*websocket.Conn]bool

	// Messages to be broadcast to all connected clients
	broadcast chan models.Message

	// Upgrader for HTTP connections to WebSocket
	upgrader websocket.Upgrader

	log *logger.Logger
}

// NewHub creates a new hub for managing WebSocket connections
func NewHub() *Hub {
	upgrader := websocket.Upgrader{
		// Allow all origins for WebSocket connections
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return &Hub{
		connections: make(map[*websocket.Conn]bool),
		broadcast:   make(chan models.Message, 16),
		upgrader:    upgrader,
		log:         logger.Get(),
	}
}

// Run starts listening for messages to broadcast
func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.mu.Lock()
		for client := range h.connections {
			if err := client.WriteJSON(msg); err != nil {
				h.log.WithError(err).Warn("dropping websocket client")
				client.Close()
				delete(h.connections, client)
			}
		}
		h.mu.Unlock()
	}
}

// HandleWebSocket upgrades an HTTP connection to WebSocket
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.connections[ws] = true
	h.mu.Unlock()

	// Read messages from the client (to keep the connection alive)
	go func() {
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				h.mu.Lock()
				delete(h.connections, ws)
				h.mu.Unlock()
				break
			}
		}
	}()
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg models.Message) {
	h.broadcast <- msg
}
