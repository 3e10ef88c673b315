package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"winequiz/store"
)

func (s *Service) TrialQuizToday(ctx context.Context, locale string) (*store.TrialQuiz, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	q, err := s.store.GetTrialQuiz(ctx, s.today(), locale)
	if err != nil {
		return nil, err
	}
	if q == nil && locale != DefaultLocale {
		q, err = s.store.GetTrialQuiz(ctx, s.today(), DefaultLocale)
		if err != nil {
			return nil, err
		}
	}
	if q == nil {
		return nil, ErrNotFound
	}
	return q, nil
}

type TrialAttemptInput struct {
	UserID         string
	QuizID         int64
	CorrectCount   int
	TotalQuestions int
}

type TrialAttemptResult struct {
	PointsAwarded int    `json:"points_awarded"`
	TotalPoints   int    `json:"total_points"`
	AttemptID     string `json:"attempt_id"`
	TrialStarted  bool   `json:"trial_started"`
}

func validateCounts(correct, total int) error {
	if correct < 0 || total < 0 || (total > 0 && correct > total) {
		return ErrInvalidAttempt
	}
	return nil
}

// questionCount is the number of entries in the quiz's questions array.
func questionCount(q *store.TrialQuiz) int {
	var questions []json.RawMessage
	if err := json.Unmarshal(q.Questions, &questions); err != nil {
		return 0
	}
	return len(questions)
}

// scoredCounts bounds correct by the stored quiz and returns the question
// count to record. The client's total is not trusted.
func scoredCounts(q *store.TrialQuiz, correct int) (int, error) {
	total := questionCount(q)
	if correct > total {
		return 0, ErrInvalidAttempt
	}
	return total, nil
}

// AttemptTrialQuiz records the user's one attempt at a trial quiz, credits
// correct_count * points_award and starts their trial if it has not started.
func (s *Service) AttemptTrialQuiz(ctx context.Context, in TrialAttemptInput) (*TrialAttemptResult, error) {
	if err := validateCounts(in.CorrectCount, in.TotalQuestions); err != nil {
		return nil, err
	}

	q, err := s.store.GetTrialQuizByID(ctx, in.QuizID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrNotFound
	}
	questions, err := scoredCounts(q, in.CorrectCount)
	if err != nil {
		return nil, err
	}
	if err := s.requireProfile(ctx, in.UserID); err != nil {
		return nil, err
	}

	attempt := &store.TrialQuizAttempt{
		UserID:         in.UserID,
		QuizID:         q.ID,
		CorrectCount:   in.CorrectCount,
		TotalQuestions: questions,
		PointsAwarded:  in.CorrectCount * q.PointsAward,
	}
	inserted, err := s.store.CreateTrialQuizAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, ErrAlreadyAttempted
	}

	meta, _ := json.Marshal(map[string]interface{}{"quiz_id": q.ID, "attempt_id": attempt.ID})
	total, err := s.points.Credit(ctx, in.UserID, attempt.PointsAwarded, "trial_quiz", meta)
	if err != nil {
		return nil, fmt.Errorf("attempt recorded but points not credited: %w", err)
	}

	started, err := s.store.StartTrial(ctx, in.UserID, s.now())
	if err != nil {
		return nil, err
	}

	return &TrialAttemptResult{
		PointsAwarded: attempt.PointsAwarded,
		TotalPoints:   total,
		AttemptID:     attempt.ID,
		TrialStarted:  started,
	}, nil
}
