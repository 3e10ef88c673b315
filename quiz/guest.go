package quiz

import (
	"context"
	"encoding/json"
	"winequiz/store"
)

// GuestProgress is what a guest earned before signing up.
type GuestProgress struct {
	Points int        `json:"points"`
	Quiz   *GuestQuiz `json:"quiz,omitempty"`
}

type GuestQuiz struct {
	QuizID         int64 `json:"quiz_id"`
	CorrectCount   int   `json:"correct_count"`
	TotalQuestions int   `json:"total_questions"`
}

type MergeResult struct {
	Success      bool `json:"success"`
	PointsMerged int  `json:"points_merged"`
	TrialStarted bool `json:"trial_started"`
}

func (s *Service) capGuestPoints(points int) int {
	if points < 0 {
		return 0
	}
	if s.guestCap > 0 && points > s.guestCap {
		return s.guestCap
	}
	return points
}

// MergeGuestProgress credits a guest's capped points to the account, once per
// profile. A guest quiz is recorded as the user's trial quiz attempt (already
// attempted quizzes are left alone; its points are part of the guest total)
// and starts the trial.
func (s *Service) MergeGuestProgress(ctx context.Context, userID string, progress GuestProgress) (*MergeResult, error) {
	if err := s.requireProfile(ctx, userID); err != nil {
		return nil, err
	}

	var attempt *store.TrialQuizAttempt
	if progress.Quiz != nil {
		if err := validateCounts(progress.Quiz.CorrectCount, progress.Quiz.TotalQuestions); err != nil {
			return nil, err
		}
		q, err := s.store.GetTrialQuizByID(ctx, progress.Quiz.QuizID)
		if err != nil {
			return nil, err
		}
		if q != nil {
			total, err := scoredCounts(q, progress.Quiz.CorrectCount)
			if err != nil {
				return nil, err
			}
			attempt = &store.TrialQuizAttempt{
				UserID:         userID,
				QuizID:         q.ID,
				CorrectCount:   progress.Quiz.CorrectCount,
				TotalQuestions: total,
			}
		} else {
			raw, _ := json.Marshal(progress.Quiz)
			s.logger.Warn("guest quiz not found, skipping attempt", "user_id", userID, "quiz", string(raw))
		}
	}

	claimed, err := s.store.MarkGuestMerged(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyMerged
	}

	points := s.capGuestPoints(progress.Points)
	if points != progress.Points {
		s.logger.Warn("guest points capped", "user_id", userID, "claimed", progress.Points, "merged", points)
	}

	if _, err := s.points.Credit(ctx, userID, points, "guest_merge", nil); err != nil {
		return nil, err
	}

	result := &MergeResult{Success: true, PointsMerged: points}
	if progress.Quiz == nil {
		return result, nil
	}

	if attempt != nil {
		if _, err := s.store.CreateTrialQuizAttempt(ctx, attempt); err != nil {
			return nil, err
		}
	}

	started, err := s.store.StartTrial(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	result.TrialStarted = started
	return result, nil
}
