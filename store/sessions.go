package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

func (s *SQLiteStore) CreateSession(ctx context.Context, gs *GameSession) error {
	if gs.ID == "" {
		gs.ID = uuid.NewString()
	}
	if gs.Status == "" {
		gs.Status = "open"
	}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO game_sessions (id, invite_code, host_user_id, status) VALUES (?, ?, ?, ?) RETURNING created_at",
		gs.ID, gs.InviteCode, gs.HostUserID, gs.Status,
	).Scan(&gs.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*GameSession, error) {
	return s.getSession(ctx, "SELECT id, invite_code, host_user_id, status, created_at FROM game_sessions WHERE id = ?", id)
}

func (s *SQLiteStore) GetSessionByInviteCode(ctx context.Context, code string) (*GameSession, error) {
	return s.getSession(ctx, "SELECT id, invite_code, host_user_id, status, created_at FROM game_sessions WHERE invite_code = ?", code)
}

func (s *SQLiteStore) getSession(ctx context.Context, query, arg string) (*GameSession, error) {
	gs := &GameSession{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&gs.ID, &gs.InviteCode, &gs.HostUserID, &gs.Status, &gs.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return gs, nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE game_sessions SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddParticipant(ctx context.Context, p *Participant) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO session_participants (id, session_id, user_id, display_name) VALUES (?, ?, ?, ?) RETURNING score, joined_at",
		p.ID, p.SessionID, p.UserID, p.DisplayName,
	).Scan(&p.Score, &p.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

const participantColumns = "id, session_id, user_id, display_name, score, joined_at"

func (s *SQLiteStore) GetParticipant(ctx context.Context, sessionID, userID string) (*Participant, error) {
	p := &Participant{}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+participantColumns+" FROM session_participants WHERE session_id = ? AND user_id = ?",
		sessionID, userID,
	).Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName, &p.Score, &p.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetParticipantByID(ctx context.Context, id string) (*Participant, error) {
	p := &Participant{}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+participantColumns+" FROM session_participants WHERE id = ?", id,
	).Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName, &p.Score, &p.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+participantColumns+" FROM session_participants WHERE session_id = ? ORDER BY joined_at, id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p := &Participant{}
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// IncrementParticipantScore adds delta in a single statement and returns the
// new score.
func (s *SQLiteStore) IncrementParticipantScore(ctx context.Context, participantID string, delta int) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx,
		"UPDATE session_participants SET score = score + ? WHERE id = ? RETURNING score",
		delta, participantID,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("failed to increment score: %w", err)
	}
	return score, nil
}

func (s *SQLiteStore) CreateRound(ctx context.Context, r *Round) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = "open"
	}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO game_rounds (id, session_id, round_number, status, payload) VALUES (?, ?, ?, ?, ?) RETURNING created_at",
		r.ID, r.SessionID, r.RoundNumber, r.Status, rawOrEmpty(r.Payload, "{}"),
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

const roundColumns = "id, session_id, round_number, status, payload, created_at"

func scanRound(row *sql.Row) (*Round, error) {
	r := &Round{}
	var payload string
	err := row.Scan(&r.ID, &r.SessionID, &r.RoundNumber, &r.Status, &payload, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	r.Payload = []byte(payload)
	return r, nil
}

func (s *SQLiteStore) GetRound(ctx context.Context, id string) (*Round, error) {
	return scanRound(s.db.QueryRowContext(ctx, "SELECT "+roundColumns+" FROM game_rounds WHERE id = ?", id))
}

// LatestRound returns the round with the highest round_number for the
// session; ties go to the most recently created row.
func (s *SQLiteStore) LatestRound(ctx context.Context, sessionID string) (*Round, error) {
	return scanRound(s.db.QueryRowContext(ctx,
		"SELECT "+roundColumns+" FROM game_rounds WHERE session_id = ? ORDER BY round_number DESC, created_at DESC, rowid DESC LIMIT 1",
		sessionID,
	))
}

func (s *SQLiteStore) CloseOpenRounds(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE game_rounds SET status = 'closed' WHERE session_id = ? AND status = 'open'",
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close rounds: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAnswer(ctx context.Context, a *RoundAnswer) error {
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO round_answers (round_id, participant_id, selected_index, is_correct) VALUES (?, ?, ?, ?) RETURNING answered_at",
		a.RoundID, a.ParticipantID, a.SelectedIndex, boolToInt(a.IsCorrect),
	).Scan(&a.AnsweredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create answer: %w", err)
	}
	return nil
}
