package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"winequiz/auth"
	"winequiz/game"
	"winequiz/store"

	"github.com/gorilla/mux"
)

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostUserID string `json:"host_user_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.HostUserID == "" {
		h.badRequest(w, "host_user_id is required")
		return
	}

	session, err := h.deps.Lobby.CreateSession(r.Context(), req.HostUserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

func (h *Handlers) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode  string `json:"invite_code"`
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if strings.TrimSpace(req.InviteCode) == "" || req.UserID == "" {
		h.badRequest(w, "invite_code and user_id are required")
		return
	}

	displayName := auth.SanitizeString(req.DisplayName)
	if displayName == "" {
		displayName = "Player"
	}

	participant, joined, err := h.deps.Lobby.Join(r.Context(), req.InviteCode, req.UserID, displayName)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	message := "Joined session"
	if !joined {
		message = "Already joined"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     message,
		"participant": participant,
	})
}

func (h *Handlers) StartRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID    string          `json:"session_id"`
		CallerUserID string          `json:"caller_user_id"`
		Payload      json.RawMessage `json:"payload"`
		RoundNumber  int             `json:"round_number"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.SessionID == "" || req.CallerUserID == "" {
		h.badRequest(w, "session_id and caller_user_id are required")
		return
	}

	round, err := h.deps.Engine.StartRound(r.Context(), game.StartRoundInput{
		SessionID:    req.SessionID,
		CallerUserID: req.CallerUserID,
		Payload:      req.Payload,
		RoundNumber:  req.RoundNumber,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"round": round})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.deps.Engine.GetState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) FinishSession(w http.ResponseWriter, r *http.Request) {
	h.closeSession(w, r, h.deps.Engine.Finish)
}

func (h *Handlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.closeSession(w, r, h.deps.Engine.Cancel)
}

func (h *Handlers) closeSession(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, sessionID, callerUserID string) (*store.GameSession, error)) {
	var req struct {
		CallerUserID string `json:"caller_user_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.CallerUserID == "" {
		h.badRequest(w, "caller_user_id is required")
		return
	}

	session, err := transition(r.Context(), mux.Vars(r)["id"], req.CallerUserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (h *Handlers) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participant_id"`
		SelectedIndex *int   `json:"selected_index"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.ParticipantID == "" || req.SelectedIndex == nil {
		h.badRequest(w, "participant_id and selected_index are required")
		return
	}

	result, err := h.deps.Engine.SubmitAnswer(r.Context(), mux.Vars(r)["id"], req.ParticipantID, *req.SelectedIndex)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
