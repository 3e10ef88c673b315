package ws

import (
	"log/slog"
	"sync"
	"winequiz/game"

	"github.com/gorilla/websocket"
)

// Manager owns one Room per watched session. Rooms exist only while at least
// one client is connected; changes for unwatched sessions are dropped.
type Manager struct {
	rooms  map[string]*Room
	source Source
	logger *slog.Logger
	mu     sync.Mutex
}

func NewManager(source Source, logger *slog.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		source: source,
		logger: logger,
	}
}

// Publish implements game.Publisher.
func (m *Manager) Publish(change game.Change) {
	m.mu.Lock()
	room := m.rooms[change.SessionID]
	m.mu.Unlock()

	if room == nil {
		return
	}
	room.notify(change.Kind)
}

func (m *Manager) join(sessionID string, client *Client) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[sessionID]
	if !exists {
		room = NewRoom(sessionID, m.source, m.logger)
		m.rooms[sessionID] = room
	}
	room.AddClient(client)
	return room
}

func (m *Manager) leave(room *Room, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room.RemoveClient(client) == 0 && m.rooms[room.sessionID] == room {
		delete(m.rooms, room.sessionID)
		room.stop()
	}
}

func (m *Manager) HandleConnection(conn *websocket.Conn, sessionID, userID string) {
	client := newClient(conn, userID)
	room := m.join(sessionID, client)
	m.logger.Info("client joined session room", "session_id", sessionID, "user_id", userID, "clients", room.ClientCount())

	// Fresh subscribers start from the current state.
	room.snapshot(client)

	go client.writePump()
	go client.readPump(m.logger,
		func(msg *IncomingMessage) { m.handleMessage(client, room, msg) },
		func() { m.leave(room, client) },
	)
}

func (m *Manager) handleMessage(client *Client, room *Room, msg *IncomingMessage) {
	switch msg.Type {
	case MsgSync:
		room.snapshot(client)
	default:
		client.sendMessage(m.logger, OutgoingMessage{
			Type:    MsgError,
			Payload: map[string]string{"message": "unknown message type: " + msg.Type},
		})
	}
}

// Close stops every room. Connected clients are left to their pumps.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range m.rooms {
		room.stop()
		delete(m.rooms, id)
	}
}
