package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const profileColumns = "id, email, password_hash, alias, country, tier, total_points, stripe_customer_id, trial_started_at, created_at"

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Tier == "" {
		p.Tier = "free"
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO profiles (id, email, password_hash, alias, country, tier) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.Email, p.PasswordHash, p.Alias, p.Country, p.Tier,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfileByID(ctx context.Context, id string) (*Profile, error) {
	return s.getProfile(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = ?", id)
}

func (s *SQLiteStore) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	return s.getProfile(ctx, "SELECT "+profileColumns+" FROM profiles WHERE email = ?", email)
}

func (s *SQLiteStore) getProfile(ctx context.Context, query string, arg string) (*Profile, error) {
	p := &Profile{}
	var trialStarted sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Email, &p.PasswordHash, &p.Alias, &p.Country, &p.Tier,
		&p.TotalPoints, &p.StripeCustomerID, &trialStarted, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if trialStarted.Valid {
		t := time.Unix(trialStarted.Int64, 0).UTC()
		p.TrialStartedAt = &t
	}
	return p, nil
}

func (s *SQLiteStore) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE profiles SET stripe_customer_id = ? WHERE id = ?",
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer: %w", err)
	}
	return nil
}

// StartTrial stamps trial_started_at unless it is already set. It reports
// whether this call started the trial.
func (s *SQLiteStore) StartTrial(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE profiles SET trial_started_at = ? WHERE id = ? AND trial_started_at IS NULL",
		at.Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to start trial: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to start trial: %w", err)
	}
	return n == 1, nil
}

// MarkGuestMerged stamps guest_merged_at unless it is already set. Only the
// call that stamps it may credit guest progress.
func (s *SQLiteStore) MarkGuestMerged(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE profiles SET guest_merged_at = ? WHERE id = ? AND guest_merged_at IS NULL",
		at.Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark guest merge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark guest merge: %w", err)
	}
	return n == 1, nil
}
