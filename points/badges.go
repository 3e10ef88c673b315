package points

import (
	"context"
	"fmt"
	"winequiz/store"
)

const (
	RuleTotalPoints = "total_points"
	RuleModeGames   = "mode_games"
)

// EvaluateBadges awards every badge whose rule the user now satisfies and
// returns the codes that were newly awarded.
func (s *Service) EvaluateBadges(ctx context.Context, userID string) ([]string, error) {
	badges, err := s.store.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	if len(badges) == 0 {
		return []string{}, nil
	}

	total, err := s.store.GetTotalPoints(ctx, userID)
	if err != nil {
		return nil, err
	}

	modeCounts := make(map[string]int)
	awarded := []string{}
	for _, b := range badges {
		earned, err := s.satisfies(ctx, userID, b, total, modeCounts)
		if err != nil {
			return nil, err
		}
		if !earned {
			continue
		}

		isNew, err := s.store.AwardBadge(ctx, userID, b.Code)
		if err != nil {
			return nil, err
		}
		if !isNew {
			continue
		}

		awarded = append(awarded, b.Code)
		s.logger.Info("badge awarded", "user_id", userID, "code", b.Code, "tier", b.Tier)
		if s.notifier != nil {
			s.notifier.Notify(userID, "badge_awarded", b)
		}
	}
	return awarded, nil
}

func (s *Service) satisfies(ctx context.Context, userID string, b *store.Badge, total int, modeCounts map[string]int) (bool, error) {
	switch b.Rule {
	case RuleTotalPoints:
		return total >= b.Threshold, nil
	case RuleModeGames:
		n, ok := modeCounts[b.Mode]
		if !ok {
			var err error
			n, err = s.store.CountGameResults(ctx, userID, b.Mode)
			if err != nil {
				return false, fmt.Errorf("failed to evaluate badge %s: %w", b.Code, err)
			}
			modeCounts[b.Mode] = n
		}
		return n >= b.Threshold, nil
	default:
		s.logger.Warn("unknown badge rule", "code", b.Code, "rule", b.Rule)
		return false, nil
	}
}

func (s *Service) ListAwards(ctx context.Context, userID string) ([]*store.BadgeAward, error) {
	awards, err := s.store.ListBadgeAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if awards == nil {
		awards = []*store.BadgeAward{}
	}
	return awards, nil
}
