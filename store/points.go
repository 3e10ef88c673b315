package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *SQLiteStore) AddLedgerEntry(ctx context.Context, e *LedgerEntry) error {
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO points_ledger (user_id, points, reason, meta) VALUES (?, ?, ?, ?) RETURNING id, created_at",
		e.UserID, e.Points, e.Reason, rawOrEmpty(e.Meta, "{}"),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add ledger entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTotalPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, "SELECT total_points FROM profiles WHERE id = ?", userID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get total points: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) SetTotalPoints(ctx context.Context, userID string, total int) error {
	_, err := s.db.ExecContext(ctx, "UPDATE profiles SET total_points = ? WHERE id = ?", total, userID)
	if err != nil {
		return fmt.Errorf("failed to set total points: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IncrementTotalPoints(ctx context.Context, userID string, delta int) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		"UPDATE profiles SET total_points = total_points + ? WHERE id = ? RETURNING total_points",
		delta, userID,
	).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("failed to increment total points: profile %s not found", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment total points: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) RecordGameResult(ctx context.Context, r *GameResult) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO game_results (user_id, mode, score, points_awarded) VALUES (?, ?, ?, ?)",
		r.UserID, r.Mode, r.Score, r.PointsAwarded,
	)
	if err != nil {
		return fmt.Errorf("failed to record game result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountGameResults(ctx context.Context, userID, mode string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM game_results WHERE user_id = ? AND mode = ?",
		userID, mode,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count game results: %w", err)
	}
	return n, nil
}
