package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"winequiz/store"
)

const (
	KindVocab     = "vocab"
	KindSwirdle   = "swirdle"
	KindGuessWhat = "guess_what"

	MaxSwirdleGuesses = 6
	DefaultLocale     = "en"
)

var (
	ErrNotFound         = errors.New("no content for today")
	ErrUnknownUser      = errors.New("user not found")
	ErrInvalidSelection = errors.New("selection out of range")
	ErrInvalidAttempt   = errors.New("invalid attempt")
	ErrAlreadyAttempted = errors.New("already attempted")
	ErrAlreadyMerged    = errors.New("guest progress already merged")
)

type Store interface {
	store.ContentStore
	GetProfileByID(ctx context.Context, id string) (*store.Profile, error)
	StartTrial(ctx context.Context, id string, at time.Time) (bool, error)
	MarkGuestMerged(ctx context.Context, id string, at time.Time) (bool, error)
}

// Creditor credits points to a user and returns their new total.
type Creditor interface {
	Credit(ctx context.Context, userID string, points int, reason string, meta json.RawMessage) (int, error)
}

type Service struct {
	store    Store
	points   Creditor
	guestCap int
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, points Creditor, guestCap int, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		points:   points,
		guestCap: guestCap,
		logger:   logger,
		now:      time.Now,
	}
}

// AttemptResult is the outcome of a daily attempt. AlreadyAttempted means
// nothing was recorded or credited.
type AttemptResult struct {
	Correct          bool
	Points           int
	TotalPoints      int
	AlreadyAttempted bool
}

func (s *Service) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// weekStart is the Monday of the current UTC week.
func (s *Service) weekStart() string {
	t := s.now().UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format("2006-01-02")
}

func (s *Service) requireProfile(ctx context.Context, userID string) error {
	profile, err := s.store.GetProfileByID(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrUnknownUser
	}
	return nil
}

// recordAttempt writes the attempt row and, only when it is new, credits
// the points. The unique key on (user, kind, content) is what stops a second
// award.
func (s *Service) recordAttempt(ctx context.Context, a *store.ContentAttempt) (*AttemptResult, error) {
	inserted, err := s.store.RecordContentAttempt(ctx, a)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &AttemptResult{AlreadyAttempted: true}, nil
	}

	meta, _ := json.Marshal(map[string]interface{}{"content_id": a.ContentID, "for_date": a.ForDate})
	total, err := s.points.Credit(ctx, a.UserID, a.Points, a.Kind, meta)
	if err != nil {
		return nil, fmt.Errorf("attempt recorded but points not credited: %w", err)
	}

	return &AttemptResult{
		Correct:     a.Correct,
		Points:      a.Points,
		TotalPoints: total,
	}, nil
}

func (s *Service) VocabToday(ctx context.Context) (*store.Vocab, error) {
	v, err := s.store.GetVocabForDate(ctx, s.today())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *Service) AttemptVocab(ctx context.Context, userID string, selection int) (*AttemptResult, error) {
	v, err := s.VocabToday(ctx)
	if err != nil {
		return nil, err
	}
	if selection < 0 || selection >= len(v.Options) {
		return nil, ErrInvalidSelection
	}
	if err := s.requireProfile(ctx, userID); err != nil {
		return nil, err
	}

	correct := selection == v.CorrectIndex
	points := 0
	if correct {
		points = v.PointsAward
	}
	return s.recordAttempt(ctx, &store.ContentAttempt{
		UserID:    userID,
		Kind:      KindVocab,
		ContentID: v.ID,
		ForDate:   v.ForDate,
		Correct:   correct,
		Points:    points,
	})
}

func (s *Service) SwirdleToday(ctx context.Context) (*store.SwirdleWord, error) {
	w, err := s.store.GetSwirdleForDate(ctx, s.today())
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	return w, nil
}

// SwirdlePoints is the award for solving in the given number of guesses:
// the full award on the first guess, one less per extra guess, never below 1.
func SwirdlePoints(award, guesses int, solved bool) int {
	if !solved {
		return 0
	}
	points := award - (guesses - 1)
	if points < 1 {
		points = 1
	}
	return points
}

func (s *Service) AttemptSwirdle(ctx context.Context, userID string, guesses int, solved bool) (*AttemptResult, error) {
	w, err := s.SwirdleToday(ctx)
	if err != nil {
		return nil, err
	}
	if guesses < 1 || guesses > MaxSwirdleGuesses {
		return nil, ErrInvalidAttempt
	}
	if err := s.requireProfile(ctx, userID); err != nil {
		return nil, err
	}

	return s.recordAttempt(ctx, &store.ContentAttempt{
		UserID:    userID,
		Kind:      KindSwirdle,
		ContentID: w.ID,
		ForDate:   w.ForDate,
		Correct:   solved,
		Points:    SwirdlePoints(w.PointsAward, guesses, solved),
	})
}

func (s *Service) GuessWhatCurrent(ctx context.Context) (*store.GuessWhat, error) {
	g, err := s.store.GetGuessWhatForWeek(ctx, s.weekStart())
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNotFound
	}
	return g, nil
}

func (s *Service) AttemptGuessWhat(ctx context.Context, userID string, selection int) (*AttemptResult, error) {
	g, err := s.GuessWhatCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if selection < 0 || selection >= len(g.Options) {
		return nil, ErrInvalidSelection
	}
	if err := s.requireProfile(ctx, userID); err != nil {
		return nil, err
	}

	correct := selection == g.CorrectIndex
	points := 0
	if correct {
		points = g.PointsAward
	}
	return s.recordAttempt(ctx, &store.ContentAttempt{
		UserID:    userID,
		Kind:      KindGuessWhat,
		ContentID: g.ID,
		ForDate:   g.WeekStart,
		Correct:   correct,
		Points:    points,
	})
}
