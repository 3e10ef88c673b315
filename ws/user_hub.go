package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// UserHub holds per-user notification sockets, one set of clients per user
// so several tabs all receive updates.
type UserHub struct {
	clients map[string]map[*Client]bool
	logger  *slog.Logger
	mu      sync.RWMutex
}

func NewUserHub(logger *slog.Logger) *UserHub {
	return &UserHub{
		clients: make(map[string]map[*Client]bool),
		logger:  logger,
	}
}

func (h *UserHub) HandleConnection(conn *websocket.Conn, userID string) {
	client := newClient(conn, userID)
	h.add(client)

	go client.writePump()
	go client.readPump(h.logger, nil, func() { h.remove(client) })
}

// Notify implements points.Notifier.
func (h *UserHub) Notify(userID, msgType string, payload interface{}) {
	data, err := json.Marshal(OutgoingMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal notification", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		if !client.trySend(data) {
			h.logger.Warn("client send buffer full", "user_id", userID)
		}
	}
}

func (h *UserHub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
}

func (h *UserHub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; ok {
		delete(set, client)
		close(client.send)
	}
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}
