package http

import (
	"log/slog"
	"net/http"
	"time"
	"winequiz/auth"
	"winequiz/billing"
	"winequiz/game"
	"winequiz/ocr"
	"winequiz/points"
	"winequiz/quiz"
	"winequiz/store"
	"winequiz/ws"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// Deps are the services the API is built from.
type Deps struct {
	Auth     *auth.Service
	Guest    *auth.GuestCookie
	Lobby    *game.Lobby
	Engine   *game.Engine
	Points   *points.Service
	Quiz     *quiz.Service
	Labels   *ocr.Reader
	Billing  *billing.Service
	Sessions *ws.Manager
	Users    *ws.UserHub
	Store    store.Store
	Logger   *slog.Logger

	AnonKey        string
	ServiceRoleKey string
	TrialLength    time.Duration
}

type Server struct {
	router   *mux.Router
	handlers *Handlers
	handler  http.Handler
	limiters []*RateLimiter
}

func NewServer(deps Deps) *Server {
	router := mux.NewRouter()

	server := &Server{
		router:   router,
		handlers: NewHandlers(deps),
	}

	server.setupRoutes(deps)
	server.handler = LoggingMiddleware(deps.Logger)(
		CORSMiddleware(
			APIKeyMiddleware(deps.AnonKey, deps.ServiceRoleKey)(router),
		),
	)
	return server
}

func (s *Server) newLimiter(perMinute float64, burst int) *RateLimiter {
	rl := NewRateLimiter(rate.Limit(perMinute/60), burst)
	s.limiters = append(s.limiters, rl)
	return rl
}

func (s *Server) setupRoutes(deps Deps) {
	h := s.handlers
	bearer := AuthMiddleware(deps.Auth)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	signinLimiter := s.newLimiter(5, 5)
	signupLimiter := s.newLimiter(3, 3)
	ocrLimiter := s.newLimiter(10, 5)

	// Accounts
	s.router.Handle("/api/auth/signup", signupLimiter.Middleware(http.HandlerFunc(h.SignUp))).Methods("POST")
	s.router.Handle("/api/auth/signin", signinLimiter.Middleware(http.HandlerFunc(h.SignIn))).Methods("POST")
	s.router.Handle("/api/me", bearer(http.HandlerFunc(h.Me))).Methods("GET")

	// Multiplayer sessions
	s.router.HandleFunc("/api/sessions", h.CreateSession).Methods("POST")
	s.router.HandleFunc("/api/sessions/join", h.JoinSession).Methods("POST")
	s.router.HandleFunc("/api/sessions/rounds", h.StartRound).Methods("POST")
	s.router.HandleFunc("/api/sessions/{id}", h.GetSession).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}/finish", h.FinishSession).Methods("POST")
	s.router.HandleFunc("/api/sessions/{id}/cancel", h.CancelSession).Methods("POST")
	s.router.HandleFunc("/api/rounds/{id}/answers", h.SubmitAnswer).Methods("POST")

	// Points and badges
	s.router.HandleFunc("/api/points/award", h.AwardPoints).Methods("POST")
	s.router.HandleFunc("/api/badges/{userId}", h.ListBadges).Methods("GET")

	// Daily content
	s.router.HandleFunc("/api/vocab/today", h.VocabToday).Methods("GET")
	s.router.HandleFunc("/api/vocab/attempt", h.VocabAttempt).Methods("POST")
	s.router.HandleFunc("/api/swirdle/today", h.SwirdleToday).Methods("GET")
	s.router.HandleFunc("/api/swirdle/attempt", h.SwirdleAttempt).Methods("POST")
	s.router.HandleFunc("/api/guess-what/current", h.GuessWhatCurrent).Methods("GET")
	s.router.HandleFunc("/api/guess-what/attempt", h.GuessWhatAttempt).Methods("POST")
	s.router.HandleFunc("/api/trial-quiz/today", h.TrialQuizToday).Methods("GET")
	s.router.Handle("/api/trial-quiz/attempt", bearer(http.HandlerFunc(h.TrialQuizAttempt))).Methods("POST")

	// Guest progress
	s.router.HandleFunc("/api/guest/progress", h.SaveGuestProgress).Methods("POST")
	s.router.Handle("/api/guest/merge", bearer(http.HandlerFunc(h.MergeGuestProgress))).Methods("POST")

	// Third-party backed
	s.router.Handle("/api/ocr/label", ocrLimiter.Middleware(http.HandlerFunc(h.ReadLabel))).Methods("POST")
	s.router.Handle("/api/billing/customer", bearer(http.HandlerFunc(h.CreateCustomer))).Methods("POST")

	// Admin
	s.router.Handle("/api/admin/content", RequireServiceRole(http.HandlerFunc(h.LoadContent))).Methods("POST")
	s.router.Handle("/api/admin/badges/evaluate/{userId}", RequireServiceRole(http.HandlerFunc(h.EvaluateBadges))).Methods("POST")

	// WebSockets
	s.router.HandleFunc("/ws/sessions/{id}", h.SessionSocket).Methods("GET")
	s.router.HandleFunc("/ws/me", h.UserSocket).Methods("GET")
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	for _, rl := range s.limiters {
		rl.Stop()
	}
}

func (s *Server) GetHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
