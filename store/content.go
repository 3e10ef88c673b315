package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

func (s *SQLiteStore) GetVocabForDate(ctx context.Context, date string) (*Vocab, error) {
	v := &Vocab{}
	var options string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, for_date, term, definition, options, correct_index, points_award FROM daily_vocab WHERE for_date = ?",
		date,
	).Scan(&v.ID, &v.ForDate, &v.Term, &v.Definition, &options, &v.CorrectIndex, &v.PointsAward)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vocab: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &v.Options); err != nil {
		return nil, fmt.Errorf("failed to decode vocab options: %w", err)
	}
	return v, nil
}

const trialQuizColumns = "id, for_date, locale, title, questions, points_award"

func scanTrialQuiz(row *sql.Row) (*TrialQuiz, error) {
	q := &TrialQuiz{}
	var questions string
	err := row.Scan(&q.ID, &q.ForDate, &q.Locale, &q.Title, &questions, &q.PointsAward)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial quiz: %w", err)
	}
	q.Questions = []byte(questions)
	return q, nil
}

func (s *SQLiteStore) GetTrialQuiz(ctx context.Context, date, locale string) (*TrialQuiz, error) {
	return scanTrialQuiz(s.db.QueryRowContext(ctx,
		"SELECT "+trialQuizColumns+" FROM trial_quizzes WHERE for_date = ? AND locale = ?",
		date, locale,
	))
}

func (s *SQLiteStore) GetTrialQuizByID(ctx context.Context, id int64) (*TrialQuiz, error) {
	return scanTrialQuiz(s.db.QueryRowContext(ctx,
		"SELECT "+trialQuizColumns+" FROM trial_quizzes WHERE id = ?", id,
	))
}

func (s *SQLiteStore) GetSwirdleForDate(ctx context.Context, date string) (*SwirdleWord, error) {
	w := &SwirdleWord{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, for_date, word, hint, points_award FROM swirdle_words WHERE for_date = ?",
		date,
	).Scan(&w.ID, &w.ForDate, &w.Word, &w.Hint, &w.PointsAward)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swirdle word: %w", err)
	}
	return w, nil
}

func (s *SQLiteStore) GetGuessWhatForWeek(ctx context.Context, weekStart string) (*GuessWhat, error) {
	g := &GuessWhat{}
	var clues, options string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, week_start, clues, options, correct_index, points_award FROM guess_what_challenges WHERE week_start = ?",
		weekStart,
	).Scan(&g.ID, &g.WeekStart, &clues, &options, &g.CorrectIndex, &g.PointsAward)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guess what challenge: %w", err)
	}
	if err := json.Unmarshal([]byte(clues), &g.Clues); err != nil {
		return nil, fmt.Errorf("failed to decode clues: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &g.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	return g, nil
}

// RecordContentAttempt inserts the attempt unless one already exists for
// (user, kind, content). It reports whether a row was written.
func (s *SQLiteStore) RecordContentAttempt(ctx context.Context, a *ContentAttempt) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO content_attempts (user_id, kind, content_id, for_date, correct, points)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, kind, content_id) DO NOTHING
	`, a.UserID, a.Kind, a.ContentID, a.ForDate, boolToInt(a.Correct), a.Points)
	if err != nil {
		return false, fmt.Errorf("failed to record attempt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record attempt: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) CreateTrialQuizAttempt(ctx context.Context, a *TrialQuizAttempt) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trial_quiz_attempts (id, user_id, quiz_id, correct_count, total_questions, points_awarded)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, quiz_id) DO NOTHING
	`, a.ID, a.UserID, a.QuizID, a.CorrectCount, a.TotalQuestions, a.PointsAwarded)
	if err != nil {
		return false, fmt.Errorf("failed to record trial quiz attempt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record trial quiz attempt: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) UpsertVocab(ctx context.Context, v *Vocab) error {
	options, err := json.Marshal(v.Options)
	if err != nil {
		return fmt.Errorf("failed to encode vocab options: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO daily_vocab (for_date, term, definition, options, correct_index, points_award)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (for_date) DO UPDATE SET
			term = excluded.term, definition = excluded.definition, options = excluded.options,
			correct_index = excluded.correct_index, points_award = excluded.points_award
		RETURNING id
	`, v.ForDate, v.Term, v.Definition, string(options), v.CorrectIndex, v.PointsAward).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert vocab: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertTrialQuiz(ctx context.Context, q *TrialQuiz) error {
	if q.Locale == "" {
		q.Locale = "en"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO trial_quizzes (for_date, locale, title, questions, points_award)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (for_date, locale) DO UPDATE SET
			title = excluded.title, questions = excluded.questions, points_award = excluded.points_award
		RETURNING id
	`, q.ForDate, q.Locale, q.Title, rawOrEmpty(q.Questions, "[]"), q.PointsAward).Scan(&q.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert trial quiz: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSwirdle(ctx context.Context, w *SwirdleWord) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO swirdle_words (for_date, word, hint, points_award)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (for_date) DO UPDATE SET
			word = excluded.word, hint = excluded.hint, points_award = excluded.points_award
		RETURNING id
	`, w.ForDate, w.Word, w.Hint, w.PointsAward).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert swirdle word: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertGuessWhat(ctx context.Context, g *GuessWhat) error {
	clues, err := json.Marshal(g.Clues)
	if err != nil {
		return fmt.Errorf("failed to encode clues: %w", err)
	}
	options, err := json.Marshal(g.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO guess_what_challenges (week_start, clues, options, correct_index, points_award)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (week_start) DO UPDATE SET
			clues = excluded.clues, options = excluded.options,
			correct_index = excluded.correct_index, points_award = excluded.points_award
		RETURNING id
	`, g.WeekStart, string(clues), string(options), g.CorrectIndex, g.PointsAward).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert guess what challenge: %w", err)
	}
	return nil
}
