package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"winequiz/auth"
	"winequiz/billing"
	"winequiz/content"
	"winequiz/game"
	"winequiz/ocr"
	"winequiz/points"
	"winequiz/quiz"
	"winequiz/store"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: deps.Logger,
		now:    time.Now,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorResponse{Error: msg, Detail: detail})
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

func (h *Handlers) badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg, "")
}

func (h *Handlers) invalidBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
}

// statusFor maps domain errors to HTTP statuses. Unknown errors are 500s.
func statusFor(err error) int {
	var ocrUpstream *ocr.UpstreamError
	var billingUpstream *billing.UpstreamError

	switch {
	case errors.As(err, &ocrUpstream), errors.As(err, &billingUpstream):
		return http.StatusBadGateway

	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, auth.ErrInvalidAlias),
		errors.Is(err, game.ErrInvalidPayload),
		errors.Is(err, quiz.ErrInvalidSelection),
		errors.Is(err, quiz.ErrInvalidAttempt),
		errors.Is(err, points.ErrInvalidScore),
		errors.Is(err, ocr.ErrUnsupportedImage),
		errors.Is(err, content.ErrInvalidBundle):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, game.ErrNotHost),
		errors.Is(err, game.ErrNotParticipant):
		return http.StatusForbidden

	case errors.Is(err, game.ErrSessionNotFound),
		errors.Is(err, game.ErrRoundNotFound),
		errors.Is(err, quiz.ErrNotFound),
		errors.Is(err, quiz.ErrUnknownUser),
		errors.Is(err, points.ErrUnknownUser),
		errors.Is(err, billing.ErrUnknownUser):
		return http.StatusNotFound

	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, game.ErrSessionClosed),
		errors.Is(err, game.ErrRoundClosed),
		errors.Is(err, game.ErrAlreadyAnswered),
		errors.Is(err, quiz.ErrAlreadyAttempted),
		errors.Is(err, quiz.ErrAlreadyMerged):
		return http.StatusConflict

	case errors.Is(err, ocr.ErrNotConfigured),
		errors.Is(err, billing.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes the error response for err. Server errors are logged and
// their message is not echoed back.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusBadGateway:
		h.logger.Warn("upstream failure", "path", r.URL.Path, "error", err)
		writeError(w, status, "upstream service failed", err.Error())
	case status >= 500:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, http.StatusText(status), "")
	case errors.Is(err, content.ErrInvalidBundle):
		writeError(w, status, content.ErrInvalidBundle.Error(), err.Error())
	default:
		writeError(w, status, err.Error(), "")
	}
}

func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
	}
	return userID, ok
}

// Accounts

type authResponse struct {
	Token   string         `json:"token"`
	Profile *store.Profile `json:"profile"`
}

func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Alias    string `json:"alias"`
		Country  string `json:"country"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.badRequest(w, "email and password are required")
		return
	}

	profile, token, err := h.deps.Auth.SignUp(r.Context(), auth.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Alias:    req.Alias,
		Country:  req.Country,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("profile created", "user_id", profile.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, Profile: profile})
}

func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.badRequest(w, "email and password are required")
		return
	}

	profile, token, err := h.deps.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, Profile: profile})
}

type meResponse struct {
	Profile       *store.Profile      `json:"profile"`
	EffectiveTier points.Tier         `json:"effective_tier"`
	Trial         points.TrialStatus  `json:"trial"`
	TotalPoints   int                 `json:"total_points"`
	Badges        []*store.BadgeAward `json:"badges"`
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.deps.Store.GetProfileByID(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "profile not found", "")
		return
	}

	badges, err := h.deps.Points.ListAwards(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now()
	writeJSON(w, http.StatusOK, meResponse{
		Profile:       profile,
		EffectiveTier: points.EffectiveTier(points.Tier(profile.Tier), profile.TrialStartedAt, now, h.deps.TrialLength),
		Trial:         points.Trial(profile.TrialStartedAt, now, h.deps.TrialLength),
		TotalPoints:   profile.TotalPoints,
		Badges:        badges,
	})
}

// Points and badges

func (h *Handlers) AwardPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string          `json:"user_id"`
		Mode        string          `json:"mode"`
		Score       *int            `json:"score"`
		StreakBonus bool            `json:"streak_bonus"`
		TimeBonus   bool            `json:"time_bonus"`
		Meta        json.RawMessage `json:"meta"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.UserID == "" || req.Mode == "" || req.Score == nil {
		h.badRequest(w, "user_id, mode and score are required")
		return
	}

	result, err := h.deps.Points.Award(r.Context(), points.AwardInput{
		UserID:      req.UserID,
		Mode:        req.Mode,
		Score:       *req.Score,
		StreakBonus: req.StreakBonus,
		TimeBonus:   req.TimeBonus,
		Meta:        req.Meta,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"points_awarded": result.PointsAwarded,
		"total_points":   result.TotalPoints,
		"badges":         result.Badges,
	})
}

func (h *Handlers) ListBadges(w http.ResponseWriter, r *http.Request) {
	awards, err := h.deps.Points.ListAwards(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": awards})
}
