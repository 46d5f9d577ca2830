package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub tracks connected display clients and fans out frames to them. Broadcast
// is fire-and-forget: slow clients have frames dropped, never retried.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Add registers a new display client and starts its writer.
func (h *Hub) Add(conn *websocket.Conn, remoteAddr, userAgent string) *Client {
	c := newClient(uuid.NewString(), conn, remoteAddr, userAgent)
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	slog.Info("display client connected", "client_id", c.ID, "remote", remoteAddr)
	return c
}

// Remove unregisters a client and closes its writer. Removing an unknown id
// is a no-op.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if ok {
		c.close()
		slog.Info("display client disconnected", "client_id", id)
	}
}

// Broadcast sends a typed message to every connected client.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(serverMessage{Type: msgType, Data: data})
	if err != nil {
		slog.Error("broadcast marshal failed", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.enqueue(payload) {
			slog.Warn("display client buffer full, frame dropped", "client_id", c.ID, "type", msgType)
		}
	}
}

// Send delivers a typed message to a single client.
func (h *Hub) Send(c *Client, msgType string, data any) {
	payload, err := json.Marshal(serverMessage{Type: msgType, Data: data})
	if err != nil {
		slog.Error("send marshal failed", "type", msgType, "error", err)
		return
	}
	if !c.enqueue(payload) {
		slog.Warn("display client buffer full, frame dropped", "client_id", c.ID, "type", msgType)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns a snapshot of connected-client metadata.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	slog.Info("hub shut down", "clients_closed", len(clients))
}
