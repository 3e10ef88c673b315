package store

import (
	"context"
	"fmt"
)

func (s *SQLiteStore) ListBadges(ctx context.Context) ([]*Badge, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT code, name, tier, icon, rule, mode, threshold FROM badges ORDER BY code",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var badges []*Badge
	for rows.Next() {
		b := &Badge{}
		if err := rows.Scan(&b.Code, &b.Name, &b.Tier, &b.Icon, &b.Rule, &b.Mode, &b.Threshold); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (s *SQLiteStore) UpsertBadge(ctx context.Context, b *Badge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO badges (code, name, tier, icon, rule, mode, threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name, tier = excluded.tier, icon = excluded.icon,
			rule = excluded.rule, mode = excluded.mode, threshold = excluded.threshold
	`, b.Code, b.Name, b.Tier, b.Icon, b.Rule, b.Mode, b.Threshold)
	if err != nil {
		return fmt.Errorf("failed to upsert badge: %w", err)
	}
	return nil
}

// AwardBadge reports whether the award is new.
func (s *SQLiteStore) AwardBadge(ctx context.Context, userID, code string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO badge_awards (user_id, code) VALUES (?, ?) ON CONFLICT (user_id, code) DO NOTHING",
		userID, code,
	)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListBadgeAwards(ctx context.Context, userID string) ([]*BadgeAward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ba.user_id, ba.code, ba.awarded_at, b.name, b.tier, b.icon, b.rule, b.mode, b.threshold
		FROM badge_awards ba
		JOIN badges b ON b.code = ba.code
		WHERE ba.user_id = ?
		ORDER BY ba.awarded_at, ba.code
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badge awards: %w", err)
	}
	defer rows.Close()

	var awards []*BadgeAward
	for rows.Next() {
		a := &BadgeAward{Badge: &Badge{}}
		if err := rows.Scan(&a.UserID, &a.Code, &a.AwardedAt,
			&a.Badge.Name, &a.Badge.Tier, &a.Badge.Icon, &a.Badge.Rule, &a.Badge.Mode, &a.Badge.Threshold); err != nil {
			return nil, fmt.Errorf("failed to scan badge award: %w", err)
		}
		a.Badge.Code = a.Code
		awards = append(awards, a)
	}
	return awards, rows.Err()
}
