package game

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"winequiz/store"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionClosed       = errors.New("session is no longer open")
	ErrNotHost             = errors.New("only the host can do that")
	ErrRoundNotFound       = errors.New("round not found")
	ErrRoundClosed         = errors.New("round is closed")
	ErrNotParticipant      = errors.New("participant not in this session")
	ErrAlreadyAnswered     = errors.New("already answered this round")
	ErrInvalidPayload      = errors.New("payload must be a JSON object")
	ErrInviteCodeExhausted = errors.New("could not allocate an invite code")
)

type Engine struct {
	store     store.SessionStore
	publisher Publisher
	logger    *slog.Logger
}

func NewEngine(store store.SessionStore, publisher Publisher, logger *slog.Logger) *Engine {
	return &Engine{store: store, publisher: publisher, logger: logger}
}

func (e *Engine) GetState(ctx context.Context, sessionID string) (*SessionState, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	participants, err := e.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if participants == nil {
		participants = []*store.Participant{}
	}

	round, err := e.store.LatestRound(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionState{
		Session:      session,
		Participants: participants,
		CurrentRound: round,
	}, nil
}

// hostSession loads the session and checks the caller is its host.
func (e *Engine) hostSession(ctx context.Context, sessionID, callerUserID string) (*store.GameSession, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.HostUserID != callerUserID {
		return nil, ErrNotHost
	}
	return session, nil
}

// StartRound opens a new round. The statements run one after another with no
// transaction, and repeated calls create repeated rounds.
func (e *Engine) StartRound(ctx context.Context, in StartRoundInput) (*store.Round, error) {
	session, err := e.hostSession(ctx, in.SessionID, in.CallerUserID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusFinished || session.Status == StatusCancelled {
		return nil, ErrSessionClosed
	}

	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, ErrInvalidPayload
	}
	if obj == nil {
		payload = json.RawMessage("{}")
	}
	var scored roundPayload
	if err := json.Unmarshal(payload, &scored); err != nil {
		return nil, ErrInvalidPayload
	}

	roundNumber := in.RoundNumber
	if roundNumber <= 0 {
		latest, err := e.store.LatestRound(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		roundNumber = 1
		if latest != nil {
			roundNumber = latest.RoundNumber + 1
		}
	}

	if session.Status == StatusOpen {
		if err := e.store.UpdateSessionStatus(ctx, session.ID, StatusActive); err != nil {
			return nil, err
		}
		e.publisher.Publish(Change{SessionID: session.ID, Kind: ChangeSession})
	}

	if err := e.store.CloseOpenRounds(ctx, session.ID); err != nil {
		return nil, err
	}

	round := &store.Round{
		SessionID:   session.ID,
		RoundNumber: roundNumber,
		Status:      RoundOpen,
		Payload:     payload,
	}
	if err := e.store.CreateRound(ctx, round); err != nil {
		return nil, err
	}

	e.logger.Info("round started", "session_id", session.ID, "round_number", roundNumber)
	e.publisher.Publish(Change{SessionID: session.ID, Kind: ChangeRounds})
	return round, nil
}

// SubmitAnswer records a participant's pick. Correct picks bump the
// participant's score with a single increment statement.
func (e *Engine) SubmitAnswer(ctx context.Context, roundID, participantID string, selectedIndex int) (*AnswerResult, error) {
	round, err := e.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if round.Status != RoundOpen {
		return nil, ErrRoundClosed
	}

	participant, err := e.store.GetParticipantByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil || participant.SessionID != round.SessionID {
		return nil, ErrNotParticipant
	}

	var p roundPayload
	if err := json.Unmarshal(round.Payload, &p); err != nil {
		e.logger.Warn("round payload unreadable, answer scored wrong", "round_id", round.ID, "error", err)
	}
	correct := p.CorrectIndex != nil && *p.CorrectIndex == selectedIndex

	answer := &store.RoundAnswer{
		RoundID:       round.ID,
		ParticipantID: participant.ID,
		SelectedIndex: selectedIndex,
		IsCorrect:     correct,
	}
	if err := e.store.CreateAnswer(ctx, answer); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyAnswered
		}
		return nil, err
	}

	score := participant.Score
	if correct {
		score, err = e.store.IncrementParticipantScore(ctx, participant.ID, 1)
		if err != nil {
			return nil, err
		}
		e.publisher.Publish(Change{SessionID: round.SessionID, Kind: ChangeParticipants})
	}

	return &AnswerResult{Answer: answer, Score: score}, nil
}

// Finish and Cancel are host-only status transitions.
func (e *Engine) Finish(ctx context.Context, sessionID, callerUserID string) (*store.GameSession, error) {
	return e.closeSession(ctx, sessionID, callerUserID, StatusFinished)
}

func (e *Engine) Cancel(ctx context.Context, sessionID, callerUserID string) (*store.GameSession, error) {
	return e.closeSession(ctx, sessionID, callerUserID, StatusCancelled)
}

func (e *Engine) closeSession(ctx context.Context, sessionID, callerUserID, status string) (*store.GameSession, error) {
	session, err := e.hostSession(ctx, sessionID, callerUserID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusFinished || session.Status == StatusCancelled {
		return nil, ErrSessionClosed
	}

	if err := e.store.UpdateSessionStatus(ctx, session.ID, status); err != nil {
		return nil, err
	}
	if err := e.store.CloseOpenRounds(ctx, session.ID); err != nil {
		return nil, err
	}
	session.Status = status

	e.logger.Info("session closed", "session_id", session.ID, "status", status)
	e.publisher.Publish(Change{SessionID: session.ID, Kind: ChangeSession})
	e.publisher.Publish(Change{SessionID: session.ID, Kind: ChangeRounds})
	return session, nil
}
