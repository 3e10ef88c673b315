package points

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"winequiz/store"
)

var (
	ErrUnknownUser  = errors.New("user not found")
	ErrInvalidScore = errors.New("score must not be negative")
)

// Store is what the points service needs from persistence.
type Store interface {
	store.PointsStore
	store.BadgeStore
	GetProfileByID(ctx context.Context, id string) (*store.Profile, error)
}

// Notifier pushes per-user updates to connected clients.
type Notifier interface {
	Notify(userID, msgType string, payload interface{})
}

type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

func NewService(store Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logger}
}

// ComputeAward is the points for one finished game: the raw score plus one
// point for each bonus.
func ComputeAward(score int, streakBonus, timeBonus bool) int {
	if score < 0 {
		score = 0
	}
	award := score
	if streakBonus {
		award++
	}
	if timeBonus {
		award++
	}
	return award
}

type AwardInput struct {
	UserID      string
	Mode        string
	Score       int
	StreakBonus bool
	TimeBonus   bool
	Meta        json.RawMessage
}

type AwardResult struct {
	PointsAwarded int      `json:"points_awarded"`
	TotalPoints   int      `json:"total_points"`
	Badges        []string `json:"badges"`
}

// Award credits a finished game. The writes are sequential: when logging
// the game result fails the points stay credited and the error is returned.
func (s *Service) Award(ctx context.Context, in AwardInput) (*AwardResult, error) {
	if in.Score < 0 {
		return nil, ErrInvalidScore
	}

	profile, err := s.store.GetProfileByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrUnknownUser
	}

	award := ComputeAward(in.Score, in.StreakBonus, in.TimeBonus)
	total, err := s.Credit(ctx, in.UserID, award, "game:"+in.Mode, in.Meta)
	if err != nil {
		return nil, err
	}

	if err := s.store.RecordGameResult(ctx, &store.GameResult{
		UserID:        in.UserID,
		Mode:          in.Mode,
		Score:         in.Score,
		PointsAwarded: award,
	}); err != nil {
		return nil, fmt.Errorf("points credited but game result not logged: %w", err)
	}

	badges, err := s.EvaluateBadges(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	return &AwardResult{
		PointsAwarded: award,
		TotalPoints:   total,
		Badges:        badges,
	}, nil
}

// Credit appends a ledger entry and bumps the profile total, returning the
// new total. Zero-point credits only read the total.
func (s *Service) Credit(ctx context.Context, userID string, points int, reason string, meta json.RawMessage) (int, error) {
	if points == 0 {
		return s.store.GetTotalPoints(ctx, userID)
	}

	if err := s.store.AddLedgerEntry(ctx, &store.LedgerEntry{
		UserID: userID,
		Points: points,
		Reason: reason,
		Meta:   meta,
	}); err != nil {
		return 0, err
	}

	total, err := s.incrementTotal(ctx, userID, points)
	if err != nil {
		return 0, err
	}

	s.logger.Info("points credited", "user_id", userID, "points", points, "reason", reason, "total", total)
	if s.notifier != nil {
		s.notifier.Notify(userID, "points_updated", map[string]interface{}{
			"points": points,
			"reason": reason,
			"total":  total,
		})
	}
	return total, nil
}

func (s *Service) incrementTotal(ctx context.Context, userID string, delta int) (int, error) {
	if inc, ok := s.store.(store.PointsIncrementer); ok {
		return inc.IncrementTotalPoints(ctx, userID, delta)
	}

	// Read-then-write: concurrent credits for one user can lose updates.
	s.logger.Warn("store has no atomic increment, falling back to read-then-write", "user_id", userID)
	current, err := s.store.GetTotalPoints(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := current + delta
	if err := s.store.SetTotalPoints(ctx, userID, total); err != nil {
		return 0, err
	}
	return total, nil
}
