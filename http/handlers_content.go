package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"winequiz/quiz"
)

func attemptResponse(res *quiz.AttemptResult) interface{} {
	if res.AlreadyAttempted {
		return map[string]interface{}{"alreadyAttempted": true}
	}
	return map[string]interface{}{
		"correct":      res.Correct,
		"points":       res.Points,
		"total_points": res.TotalPoints,
	}
}

func (h *Handlers) VocabToday(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.Quiz.VocabToday(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) VocabAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		Selection *int   `json:"selection"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.UserID == "" || req.Selection == nil {
		h.badRequest(w, "user_id and selection are required")
		return
	}

	res, err := h.deps.Quiz.AttemptVocab(r.Context(), req.UserID, *req.Selection)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse(res))
}

func (h *Handlers) SwirdleToday(w http.ResponseWriter, r *http.Request) {
	word, err := h.deps.Quiz.SwirdleToday(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, word)
}

func (h *Handlers) SwirdleAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Guesses *int   `json:"guesses"`
		Solved  bool   `json:"solved"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.UserID == "" || req.Guesses == nil {
		h.badRequest(w, "user_id and guesses are required")
		return
	}

	res, err := h.deps.Quiz.AttemptSwirdle(r.Context(), req.UserID, *req.Guesses, req.Solved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse(res))
}

func (h *Handlers) GuessWhatCurrent(w http.ResponseWriter, r *http.Request) {
	g, err := h.deps.Quiz.GuessWhatCurrent(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handlers) GuessWhatAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		Selection *int   `json:"selection"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.UserID == "" || req.Selection == nil {
		h.badRequest(w, "user_id and selection are required")
		return
	}

	res, err := h.deps.Quiz.AttemptGuessWhat(r.Context(), req.UserID, *req.Selection)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse(res))
}

func (h *Handlers) TrialQuizToday(w http.ResponseWriter, r *http.Request) {
	locale := quiz.DetectLocale(r.URL.Query().Get("locale"), r.Header.Get("Accept-Language"))
	q, err := h.deps.Quiz.TrialQuizToday(r.Context(), locale)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handlers) TrialQuizAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		QuizID         *int64 `json:"quiz_id"`
		CorrectCount   *int   `json:"correct_count"`
		TotalQuestions int    `json:"total_questions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.QuizID == nil || req.CorrectCount == nil {
		h.badRequest(w, "quiz_id and correct_count are required")
		return
	}

	res, err := h.deps.Quiz.AttemptTrialQuiz(r.Context(), quiz.TrialAttemptInput{
		UserID:         userID,
		QuizID:         *req.QuizID,
		CorrectCount:   *req.CorrectCount,
		TotalQuestions: req.TotalQuestions,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Guest progress

func (h *Handlers) SaveGuestProgress(w http.ResponseWriter, r *http.Request) {
	var progress quiz.GuestProgress
	if err := decodeJSON(w, r, &progress); err != nil {
		h.invalidBody(w, err)
		return
	}
	if progress.Points < 0 {
		h.badRequest(w, "points must not be negative")
		return
	}

	if err := h.deps.Guest.Write(w, progress); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MergeGuestProgress takes the progress from the body, or from the guest
// cookie when the body is empty.
func (h *Handlers) MergeGuestProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.invalidBody(w, err)
		return
	}

	var progress quiz.GuestProgress
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &progress); err != nil {
			h.invalidBody(w, err)
			return
		}
	} else {
		found, err := h.deps.Guest.Read(r, &progress)
		if err != nil {
			h.logger.Warn("unreadable guest cookie", "user_id", userID, "error", err)
			h.deps.Guest.Clear(w)
			h.badRequest(w, "guest progress cookie is invalid")
			return
		}
		if !found {
			h.badRequest(w, "no guest progress to merge")
			return
		}
	}

	res, err := h.deps.Quiz.MergeGuestProgress(r.Context(), userID, progress)
	if err != nil {
		if errors.Is(err, quiz.ErrAlreadyMerged) {
			h.deps.Guest.Clear(w)
		}
		h.fail(w, r, err)
		return
	}

	h.deps.Guest.Clear(w)
	writeJSON(w, http.StatusOK, res)
}
