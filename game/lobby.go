package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"winequiz/store"
)

const (
	inviteAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteCodeLength = 6
	inviteAttempts   = 5
)

type Lobby struct {
	store     store.SessionStore
	publisher Publisher
	logger    *slog.Logger
}

func NewLobby(store store.SessionStore, publisher Publisher, logger *slog.Logger) *Lobby {
	return &Lobby{store: store, publisher: publisher, logger: logger}
}

// CreateSession opens a session hosted by hostUserID under a fresh invite
// code, retrying when the code is already taken.
func (l *Lobby) CreateSession(ctx context.Context, hostUserID string) (*store.GameSession, error) {
	for i := 0; i < inviteAttempts; i++ {
		code, err := newInviteCode()
		if err != nil {
			return nil, err
		}

		session := &store.GameSession{
			InviteCode: code,
			HostUserID: hostUserID,
			Status:     StatusOpen,
		}
		err = l.store.CreateSession(ctx, session)
		if errors.Is(err, store.ErrDuplicate) {
			l.logger.Debug("invite code collision", "code", code)
			continue
		}
		if err != nil {
			return nil, err
		}

		l.logger.Info("session created", "session_id", session.ID, "host", hostUserID)
		return session, nil
	}
	return nil, ErrInviteCodeExhausted
}

// Join adds the user to the session behind inviteCode. A user who already
// joined gets their existing participant row back with joined=false.
func (l *Lobby) Join(ctx context.Context, inviteCode, userID, displayName string) (*store.Participant, bool, error) {
	session, err := l.store.GetSessionByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(inviteCode)))
	if err != nil {
		return nil, false, err
	}
	if session == nil {
		return nil, false, ErrSessionNotFound
	}

	if session.Status == StatusFinished || session.Status == StatusCancelled {
		return nil, false, ErrSessionClosed
	}

	participant := &store.Participant{
		SessionID:   session.ID,
		UserID:      userID,
		DisplayName: displayName,
	}
	err = l.store.AddParticipant(ctx, participant)
	if errors.Is(err, store.ErrDuplicate) {
		existing, err := l.store.GetParticipant(ctx, session.ID, userID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	l.publisher.Publish(Change{SessionID: session.ID, Kind: ChangeParticipants})
	return participant, true, nil
}

func newInviteCode() (string, error) {
	code := make([]byte, inviteCodeLength)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate invite code: %w", err)
		}
		code[i] = inviteAlphabet[n.Int64()]
	}
	return string(code), nil
}
