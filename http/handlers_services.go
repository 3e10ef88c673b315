package http

import (
	"errors"
	"net/http"
	"winequiz/auth"
	"winequiz/content"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const maxUploadBytes = 10 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sockets authenticate with a token, never a cookie.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handlers) ReadLabel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image exceeds 10 MiB", "")
			return
		}
		h.badRequest(w, "multipart form with a file field is required")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, "file is required")
		return
	}
	defer file.Close()
	if header.Size > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image exceeds 10 MiB", "")
		return
	}

	text, err := h.deps.Labels.ReadLabel(r.Context(), file, header.Size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name   string `json:"name"`
		Locale string `json:"locale"`
	}
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.invalidBody(w, err)
		return
	}

	res, err := h.deps.Billing.EnsureCustomer(r.Context(), userID, auth.SanitizeString(req.Name), auth.SanitizeString(req.Locale))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Admin

func (h *Handlers) LoadContent(w http.ResponseWriter, r *http.Request) {
	bundle, err := content.Decode(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := content.Load(r.Context(), h.deps.Store, bundle)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("content bundle loaded", "summary", summary)
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) EvaluateBadges(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	profile, err := h.deps.Store.GetProfileByID(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "profile not found", "")
		return
	}

	awarded, err := h.deps.Points.EvaluateBadges(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"awarded": awarded})
}

// WebSockets

// SessionSocket subscribes to a session room. The user is taken from a
// valid ?token= when present, else from the required ?user_id=.
func (h *Handlers) SessionSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	userID := r.URL.Query().Get("user_id")
	if token := r.URL.Query().Get("token"); token != "" {
		id, err := h.deps.Auth.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token", "")
			return
		}
		userID = id
	}
	if userID == "" {
		h.badRequest(w, "user_id or token is required")
		return
	}

	session, err := h.deps.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.deps.Sessions.HandleConnection(conn, sessionID, userID)
}

func (h *Handlers) UserSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	userID, err := h.deps.Auth.Authenticate(token)
	if token == "" || err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.deps.Users.HandleConnection(conn, userID)
}
