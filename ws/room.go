package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
	"winequiz/game"
	"winequiz/store"
)

const refetchTimeout = 5 * time.Second

// Source is the read side a room re-queries after every change.
type Source interface {
	GetSession(ctx context.Context, id string) (*store.GameSession, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*store.Participant, error)
	LatestRound(ctx context.Context, sessionID string) (*store.Round, error)
}

// Room fans out one session's changes to its websocket clients. Changes are
// coalesced per kind and each kind is re-read from the source, so the last
// broadcast always reflects the store after the last change, whatever order
// the changes arrived in.
type Room struct {
	sessionID string
	source    Source
	logger    *slog.Logger

	clients map[*Client]bool
	mu      sync.RWMutex

	pendingMu sync.Mutex
	pending   map[game.ChangeKind]bool
	wake      chan struct{}
	done      chan struct{}
}

func NewRoom(sessionID string, source Source, logger *slog.Logger) *Room {
	r := &Room{
		sessionID: sessionID,
		source:    source,
		logger:    logger.With("session_id", sessionID),
		clients:   make(map[*Client]bool),
		pending:   make(map[game.ChangeKind]bool),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Room) AddClient(client *Client) {
	r.mu.Lock()
	r.clients[client] = true
	r.mu.Unlock()
}

// RemoveClient drops the client and returns how many remain.
func (r *Room) RemoveClient(client *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client]; ok {
		delete(r.clients, client)
		close(client.send)
	}
	return len(r.clients)
}

func (r *Room) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Room) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		r.logger.Error("failed to marshal message", "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for client := range r.clients {
		if !client.trySend(data) {
			r.logger.Warn("client send buffer full", "user_id", client.userID)
		}
	}
}

func (r *Room) notify(kind game.ChangeKind) {
	r.pendingMu.Lock()
	r.pending[kind] = true
	r.pendingMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Room) stop() {
	close(r.done)
}

func (r *Room) run() {
	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		}

		r.pendingMu.Lock()
		kinds := r.pending
		r.pending = make(map[game.ChangeKind]bool)
		r.pendingMu.Unlock()

		// Session first so clients see a status flip before the round it caused.
		for _, kind := range []game.ChangeKind{game.ChangeSession, game.ChangeParticipants, game.ChangeRounds} {
			if kinds[kind] {
				r.refresh(kind)
			}
		}
	}
}

func (r *Room) refresh(kind game.ChangeKind) {
	msg, err := r.fetch(kind)
	if err != nil {
		r.logger.Error("failed to refetch after change", "kind", kind, "error", err)
		return
	}
	r.Broadcast(msg)
}

func (r *Room) fetch(kind game.ChangeKind) (OutgoingMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()

	switch kind {
	case game.ChangeSession:
		session, err := r.source.GetSession(ctx, r.sessionID)
		if err != nil {
			return OutgoingMessage{}, err
		}
		return OutgoingMessage{Type: MsgSessionUpdated, Payload: map[string]interface{}{"session": session}}, nil

	case game.ChangeParticipants:
		participants, err := r.source.ListParticipants(ctx, r.sessionID)
		if err != nil {
			return OutgoingMessage{}, err
		}
		if participants == nil {
			participants = []*store.Participant{}
		}
		return OutgoingMessage{Type: MsgParticipantsUpdated, Payload: map[string]interface{}{"participants": participants}}, nil

	default:
		round, err := r.source.LatestRound(ctx, r.sessionID)
		if err != nil {
			return OutgoingMessage{}, err
		}
		return OutgoingMessage{Type: MsgRoundUpdated, Payload: map[string]interface{}{"round": round}}, nil
	}
}

// snapshot sends the full current state to a single client.
func (r *Room) snapshot(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()

	session, err := r.source.GetSession(ctx, r.sessionID)
	if err != nil {
		r.logger.Error("snapshot failed", "error", err)
		client.sendMessage(r.logger, OutgoingMessage{Type: MsgError, Payload: map[string]string{"message": "snapshot failed"}})
		return
	}
	participants, err := r.source.ListParticipants(ctx, r.sessionID)
	if err != nil {
		r.logger.Error("snapshot failed", "error", err)
		return
	}
	if participants == nil {
		participants = []*store.Participant{}
	}
	round, err := r.source.LatestRound(ctx, r.sessionID)
	if err != nil {
		r.logger.Error("snapshot failed", "error", err)
		return
	}

	client.sendMessage(r.logger, OutgoingMessage{
		Type: MsgSnapshot,
		Payload: game.SessionState{
			Session:      session,
			Participants: participants,
			CurrentRound: round,
		},
	})
}
