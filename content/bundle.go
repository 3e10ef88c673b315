// Package content loads curated daily content and badge definitions.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"winequiz/store"
)

var ErrInvalidBundle = errors.New("invalid content bundle")

// Bundle is the file format for `winequiz seed` and the admin content
// endpoint. Unlike the public content types it carries the answers.
type Bundle struct {
	Vocab        []VocabItem         `json:"vocab"`
	TrialQuizzes []store.TrialQuiz   `json:"trial_quizzes"`
	Swirdle      []store.SwirdleWord `json:"swirdle"`
	GuessWhat    []GuessWhatItem     `json:"guess_what"`
	Badges       []store.Badge       `json:"badges"`
}

type VocabItem struct {
	ForDate      string   `json:"for_date"`
	Term         string   `json:"term"`
	Definition   string   `json:"definition"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	PointsAward  int      `json:"points_award"`
}

type GuessWhatItem struct {
	WeekStart    string   `json:"week_start"`
	Clues        []string `json:"clues"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	PointsAward  int      `json:"points_award"`
}

// Summary counts what a load wrote.
type Summary struct {
	Vocab        int `json:"vocab"`
	TrialQuizzes int `json:"trial_quizzes"`
	Swirdle      int `json:"swirdle"`
	GuessWhat    int `json:"guess_what"`
	Badges       int `json:"badges"`
}

type Store interface {
	store.ContentStore
	UpsertBadge(ctx context.Context, b *store.Badge) error
}

func Decode(r io.Reader) (*Bundle, error) {
	var b Bundle
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	return &b, nil
}

func checkDate(field, value string) error {
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("%w: %s %q is not a YYYY-MM-DD date", ErrInvalidBundle, field, value)
	}
	return nil
}

func checkChoice(field string, options []string, correct int) error {
	if len(options) < 2 {
		return fmt.Errorf("%w: %s needs at least two options", ErrInvalidBundle, field)
	}
	if correct < 0 || correct >= len(options) {
		return fmt.Errorf("%w: %s correct_index %d out of range", ErrInvalidBundle, field, correct)
	}
	return nil
}

// Validate checks every entry before anything is written.
func (b *Bundle) Validate() error {
	for _, v := range b.Vocab {
		if err := checkDate("vocab for_date", v.ForDate); err != nil {
			return err
		}
		if v.Term == "" {
			return fmt.Errorf("%w: vocab for %s has no term", ErrInvalidBundle, v.ForDate)
		}
		if err := checkChoice("vocab "+v.ForDate, v.Options, v.CorrectIndex); err != nil {
			return err
		}
	}
	for _, q := range b.TrialQuizzes {
		if err := checkDate("trial quiz for_date", q.ForDate); err != nil {
			return err
		}
		var questions []json.RawMessage
		if err := json.Unmarshal(q.Questions, &questions); err != nil || len(questions) == 0 {
			return fmt.Errorf("%w: trial quiz for %s needs a non-empty questions array", ErrInvalidBundle, q.ForDate)
		}
	}
	for _, w := range b.Swirdle {
		if err := checkDate("swirdle for_date", w.ForDate); err != nil {
			return err
		}
		if w.Word == "" {
			return fmt.Errorf("%w: swirdle for %s has no word", ErrInvalidBundle, w.ForDate)
		}
	}
	for _, g := range b.GuessWhat {
		if err := checkDate("guess what week_start", g.WeekStart); err != nil {
			return err
		}
		start, _ := time.Parse("2006-01-02", g.WeekStart)
		if start.Weekday() != time.Monday {
			return fmt.Errorf("%w: guess what week_start %s is not a Monday", ErrInvalidBundle, g.WeekStart)
		}
		if err := checkChoice("guess what "+g.WeekStart, g.Options, g.CorrectIndex); err != nil {
			return err
		}
	}
	for _, badge := range b.Badges {
		if badge.Code == "" || badge.Rule == "" {
			return fmt.Errorf("%w: badge needs a code and a rule", ErrInvalidBundle)
		}
	}
	return nil
}

// Load validates the bundle and upserts every entry, keyed on date (and
// locale for trial quizzes), so loading the same bundle twice is harmless.
func Load(ctx context.Context, s Store, b *Bundle) (*Summary, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, item := range b.Vocab {
		if err := s.UpsertVocab(ctx, &store.Vocab{
			ForDate:      item.ForDate,
			Term:         item.Term,
			Definition:   item.Definition,
			Options:      item.Options,
			CorrectIndex: item.CorrectIndex,
			PointsAward:  item.PointsAward,
		}); err != nil {
			return sum, err
		}
		sum.Vocab++
	}
	for i := range b.TrialQuizzes {
		if err := s.UpsertTrialQuiz(ctx, &b.TrialQuizzes[i]); err != nil {
			return sum, err
		}
		sum.TrialQuizzes++
	}
	for i := range b.Swirdle {
		if err := s.UpsertSwirdle(ctx, &b.Swirdle[i]); err != nil {
			return sum, err
		}
		sum.Swirdle++
	}
	for _, item := range b.GuessWhat {
		if err := s.UpsertGuessWhat(ctx, &store.GuessWhat{
			WeekStart:    item.WeekStart,
			Clues:        item.Clues,
			Options:      item.Options,
			CorrectIndex: item.CorrectIndex,
			PointsAward:  item.PointsAward,
		}); err != nil {
			return sum, err
		}
		sum.GuessWhat++
	}
	for i := range b.Badges {
		if err := s.UpsertBadge(ctx, &b.Badges[i]); err != nil {
			return sum, err
		}
		sum.Badges++
	}
	return sum, nil
}
