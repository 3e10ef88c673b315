package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"winequiz/auth"
	"winequiz/billing"
	"winequiz/game"
	"winequiz/ocr"
	"winequiz/points"
	"winequiz/quiz"
	"winequiz/store"
	"winequiz/ws"
)

const serviceKey = "service-key"

type fakeRecognizer struct{}

func (fakeRecognizer) DetectText(ctx context.Context, jpeg []byte) (string, error) {
	return "Domaine de la Romanee-Conti", nil
}

type fakeCustomers struct{ created int }

func (f *fakeCustomers) CreateCustomer(ctx context.Context, p billing.CustomerParams) (string, error) {
	f.created++
	return "cus_" + p.ProfileID[:8], nil
}

type testEnv struct {
	server    *Server
	db        *store.SQLiteStore
	customers *fakeCustomers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := ws.NewManager(db, logger)
	users := ws.NewUserHub(logger)
	pointsService := points.NewService(db, users, logger)
	customers := &fakeCustomers{}

	server := NewServer(Deps{
		Auth:           auth.NewService(db, auth.NewTokenIssuer("test-secret")),
		Guest:          auth.NewGuestCookie([]byte("hash-key-for-tests-0123456789abc"), []byte("block-key-16byte")),
		Lobby:          game.NewLobby(db, sessions, logger),
		Engine:         game.NewEngine(db, sessions, logger),
		Points:         pointsService,
		Quiz:           quiz.NewService(db, pointsService, 500, logger),
		Labels:         ocr.NewReader(fakeRecognizer{}, 1600, logger),
		Billing:        billing.NewService(db, customers, logger),
		Sessions:       sessions,
		Users:          users,
		Store:          db,
		Logger:         logger,
		ServiceRoleKey: serviceKey,
		TrialLength:    7 * 24 * time.Hour,
	})
	t.Cleanup(func() {
		server.Close()
		sessions.Close()
	})
	return &testEnv{server: server, db: db, customers: customers}
}

type call struct {
	method  string
	path    string
	body    interface{}
	token   string
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := c.body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, want, rec.Body.String())
	}
}

func (e *testEnv) signUp(t *testing.T, email string) (string, *store.Profile) {
	t.Helper()
	rec := e.do(t, call{method: "POST", path: "/api/auth/signup", body: map[string]string{
		"email": email, "password": "merlot2019", "alias": "taster", "country": "it",
	}})
	expectStatus(t, rec, http.StatusCreated)
	var resp authResponse
	decode(t, rec, &resp)
	return resp.Token, resp.Profile
}

func TestSignUpAndMe(t *testing.T) {
	env := newTestEnv(t)
	token, profile := env.signUp(t, "me@example.com")

	rec := env.do(t, call{method: "GET", path: "/api/me", token: token})
	expectStatus(t, rec, http.StatusOK)
	var me struct {
		Profile       store.Profile `json:"profile"`
		EffectiveTier string        `json:"effective_tier"`
		Trial         struct {
			Started bool `json:"started"`
		} `json:"trial"`
	}
	decode(t, rec, &me)
	if me.Profile.ID != profile.ID || me.EffectiveTier != "free" || me.Trial.Started {
		t.Fatalf("unexpected me %+v", me)
	}

	expectStatus(t, env.do(t, call{method: "GET", path: "/api/me"}), http.StatusUnauthorized)
	expectStatus(t, env.do(t, call{method: "GET", path: "/api/me", token: "garbage"}), http.StatusUnauthorized)

	rec = env.do(t, call{method: "POST", path: "/api/auth/signin", body: map[string]string{"email": "me@example.com", "password": "wrong0000"}})
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestErrorShapes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: "GET", path: "/api/points/award"})
	expectStatus(t, rec, http.StatusMethodNotAllowed)
	var body errorResponse
	decode(t, rec, &body)
	if body.Error == "" {
		t.Fatal("405 should carry an error message")
	}

	rec = env.do(t, call{method: "GET", path: "/api/nope"})
	expectStatus(t, rec, http.StatusNotFound)
	decode(t, rec, &body)

	rec = env.do(t, call{method: "OPTIONS", path: "/api/points/award"})
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("preflight should carry CORS headers")
	}

	expectStatus(t, env.do(t, call{method: "POST", path: "/api/sessions", body: "{not json"}), http.StatusBadRequest)
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expectStatus(t, env.do(t, call{method: "POST", path: "/api/sessions", body: map[string]string{}}), http.StatusBadRequest)

	rec := env.do(t, call{method: "POST", path: "/api/sessions", body: map[string]string{"host_user_id": "host"}})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		Session store.GameSession `json:"session"`
	}
	decode(t, rec, &created)
	session := created.Session

	// Missing user_id: rejected before anything is written.
	rec = env.do(t, call{method: "POST", path: "/api/sessions/join", body: map[string]string{"invite_code": session.InviteCode}})
	expectStatus(t, rec, http.StatusBadRequest)
	if ps, _ := env.db.ListParticipants(ctx, session.ID); len(ps) != 0 {
		t.Fatalf("bad request wrote participants: %v", ps)
	}

	rec = env.do(t, call{method: "POST", path: "/api/sessions/join", body: map[string]string{"invite_code": "ZZZZZZ", "user_id": "guest"}})
	expectStatus(t, rec, http.StatusNotFound)

	rec = env.do(t, call{method: "POST", path: "/api/sessions/join", body: map[string]string{
		"invite_code": strings.ToLower(session.InviteCode), "user_id": "guest", "display_name": "<i>Guest</i>",
	}})
	expectStatus(t, rec, http.StatusOK)
	var joined struct {
		Participant store.Participant `json:"participant"`
	}
	decode(t, rec, &joined)
	if joined.Participant.DisplayName != "Guest" {
		t.Fatalf("display name not sanitised: %q", joined.Participant.DisplayName)
	}

	rec = env.do(t, call{method: "POST", path: "/api/sessions/rounds", body: map[string]interface{}{
		"session_id": session.ID, "caller_user_id": "guest", "payload": map[string]int{"correct_index": 1},
	}})
	expectStatus(t, rec, http.StatusForbidden)
	after, _ := env.db.GetSession(ctx, session.ID)
	if after.Status != game.StatusOpen {
		t.Fatalf("non-host start changed status to %s", after.Status)
	}
	if round, _ := env.db.LatestRound(ctx, session.ID); round != nil {
		t.Fatal("non-host start created a round")
	}

	rec = env.do(t, call{method: "POST", path: "/api/sessions/rounds", body: map[string]interface{}{
		"session_id": session.ID, "caller_user_id": "host", "payload": map[string]int{"correct_index": 1},
	}})
	expectStatus(t, rec, http.StatusCreated)
	var started struct {
		Round store.Round `json:"round"`
	}
	decode(t, rec, &started)
	if started.Round.RoundNumber != 1 {
		t.Fatalf("round number = %d", started.Round.RoundNumber)
	}

	answerPath := "/api/rounds/" + started.Round.ID + "/answers"
	rec = env.do(t, call{method: "POST", path: answerPath, body: map[string]interface{}{
		"participant_id": joined.Participant.ID, "selected_index": 1,
	}})
	expectStatus(t, rec, http.StatusOK)
	var answer game.AnswerResult
	decode(t, rec, &answer)
	if !answer.Answer.IsCorrect || answer.Score != 1 {
		t.Fatalf("unexpected answer %+v", answer)
	}

	rec = env.do(t, call{method: "POST", path: answerPath, body: map[string]interface{}{
		"participant_id": joined.Participant.ID, "selected_index": 0,
	}})
	expectStatus(t, rec, http.StatusConflict)

	rec = env.do(t, call{method: "GET", path: "/api/sessions/" + session.ID})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, call{method: "POST", path: "/api/sessions/" + session.ID + "/finish", body: map[string]string{"caller_user_id": "host"}})
	expectStatus(t, rec, http.StatusOK)
	rec = env.do(t, call{method: "POST", path: "/api/sessions/" + session.ID + "/cancel", body: map[string]string{"caller_user_id": "host"}})
	expectStatus(t, rec, http.StatusConflict)
}

func TestAwardPoints(t *testing.T) {
	env := newTestEnv(t)
	_, profile := env.signUp(t, "award@example.com")

	rec := env.do(t, call{method: "POST", path: "/api/points/award", body: map[string]interface{}{"user_id": profile.ID, "mode": "wine_options"}})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, call{method: "POST", path: "/api/points/award", body: map[string]interface{}{
		"user_id": profile.ID, "mode": "wine_options", "score": 3, "streak_bonus": true, "time_bonus": false,
	}})
	expectStatus(t, rec, http.StatusOK)
	var resp struct {
		OK            bool     `json:"ok"`
		PointsAwarded int      `json:"points_awarded"`
		TotalPoints   int      `json:"total_points"`
		Badges        []string `json:"badges"`
	}
	decode(t, rec, &resp)
	if !resp.OK || resp.PointsAwarded != 4 || resp.TotalPoints != 4 || resp.Badges == nil {
		t.Fatalf("unexpected award %+v", resp)
	}

	rec = env.do(t, call{method: "POST", path: "/api/points/award", body: map[string]interface{}{"user_id": "ghost", "mode": "x", "score": 1}})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestVocabAttemptTwice(t *testing.T) {
	env := newTestEnv(t)
	_, profile := env.signUp(t, "vocab@example.com")

	expectStatus(t, env.do(t, call{method: "GET", path: "/api/vocab/today"}), http.StatusNotFound)

	if err := env.db.UpsertVocab(context.Background(), &store.Vocab{
		ForDate:      time.Now().UTC().Format("2006-01-02"),
		Term:         "Sur lie",
		Options:      []string{"On the lees", "On the vine"},
		CorrectIndex: 0,
		PointsAward:  5,
	}); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, call{method: "GET", path: "/api/vocab/today"})
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "correct_index") {
		t.Fatal("vocab response must not leak the answer")
	}

	body := map[string]interface{}{"user_id": profile.ID, "selection": 0}
	rec = env.do(t, call{method: "POST", path: "/api/vocab/attempt", body: body})
	expectStatus(t, rec, http.StatusOK)
	var first map[string]interface{}
	decode(t, rec, &first)
	if first["correct"] != true || first["points"] != float64(5) {
		t.Fatalf("unexpected first attempt %v", first)
	}

	rec = env.do(t, call{method: "POST", path: "/api/vocab/attempt", body: body})
	expectStatus(t, rec, http.StatusOK)
	var second map[string]interface{}
	decode(t, rec, &second)
	if second["alreadyAttempted"] != true {
		t.Fatalf("unexpected second attempt %v", second)
	}

	total, _ := env.db.GetTotalPoints(context.Background(), profile.ID)
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
}

func TestTrialQuizAndGuestMerge(t *testing.T) {
	env := newTestEnv(t)
	token, profile := env.signUp(t, "trial@example.com")

	q := &store.TrialQuiz{ForDate: time.Now().UTC().Format("2006-01-02"), Locale: "en", Title: "Intro", PointsAward: 2,
		Questions: json.RawMessage(`[{"q":"Rioja grape?"},{"q":"Barolo grape?"},{"q":"Chablis grape?"}]`)}
	if err := env.db.UpsertTrialQuiz(context.Background(), q); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, call{method: "GET", path: "/api/trial-quiz/today", headers: map[string]string{"Accept-Language": "fr-FR"}})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, call{method: "POST", path: "/api/guest/progress", body: map[string]interface{}{
		"points": 30, "quiz": map[string]interface{}{"quiz_id": q.ID, "correct_count": 2, "total_questions": 3},
	}})
	expectStatus(t, rec, http.StatusOK)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("guest progress should set a cookie")
	}

	req := httptest.NewRequest("POST", "/api/guest/merge", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	merged := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(merged, req)
	expectStatus(t, merged, http.StatusOK)
	var result quiz.MergeResult
	decode(t, merged, &result)
	if !result.Success || result.PointsMerged != 30 || !result.TrialStarted {
		t.Fatalf("unexpected merge %+v", result)
	}

	rec = env.do(t, call{method: "POST", path: "/api/trial-quiz/attempt", token: token, body: map[string]interface{}{
		"quiz_id": q.ID, "correct_count": 3, "total_questions": 3,
	}})
	expectStatus(t, rec, http.StatusConflict)

	rec = env.do(t, call{method: "POST", path: "/api/trial-quiz/attempt", token: token, body: map[string]interface{}{
		"quiz_id": 424242, "correct_count": 1,
	}})
	expectStatus(t, rec, http.StatusNotFound)

	rec = env.do(t, call{method: "POST", path: "/api/trial-quiz/attempt", token: token, body: map[string]interface{}{
		"quiz_id": q.ID, "correct_count": 1000000,
	}})
	expectStatus(t, rec, http.StatusBadRequest)

	replay := env.do(t, call{method: "POST", path: "/api/guest/merge", token: token, body: map[string]interface{}{"points": 30}})
	expectStatus(t, replay, http.StatusConflict)
	if total, _ := env.db.GetTotalPoints(context.Background(), profile.ID); total != 30 {
		t.Fatalf("total after replayed merge = %d, want 30", total)
	}

	expectStatus(t, env.do(t, call{method: "POST", path: "/api/guest/merge", token: token}), http.StatusBadRequest)
}

func TestReadLabel(t *testing.T) {
	env := newTestEnv(t)

	expectStatus(t, env.do(t, call{method: "POST", path: "/api/ocr/label", body: "{}"}), http.StatusBadRequest)

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 64, 32))); err != nil {
		t.Fatal(err)
	}
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, _ := mw.CreateFormFile("file", "label.png")
	part.Write(img.Bytes())
	mw.Close()

	req := httptest.NewRequest("POST", "/api/ocr/label", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)

	var resp map[string]string
	decode(t, rec, &resp)
	if resp["text"] != "Domaine de la Romanee-Conti" {
		t.Fatalf("unexpected text %v", resp)
	}
}

func TestCreateCustomer(t *testing.T) {
	env := newTestEnv(t)
	token, profile := env.signUp(t, "pay@example.com")

	expectStatus(t, env.do(t, call{method: "POST", path: "/api/billing/customer"}), http.StatusUnauthorized)

	rec := env.do(t, call{method: "POST", path: "/api/billing/customer", token: token})
	expectStatus(t, rec, http.StatusOK)
	var first billing.CustomerResult
	decode(t, rec, &first)
	if first.Status != billing.StatusCreated || first.StripeCustomerID != "cus_"+profile.ID[:8] {
		t.Fatalf("unexpected result %+v", first)
	}

	rec = env.do(t, call{method: "POST", path: "/api/billing/customer", token: token, body: map[string]string{"name": "Pay"}})
	expectStatus(t, rec, http.StatusOK)
	var second billing.CustomerResult
	decode(t, rec, &second)
	if second.Status != billing.StatusExists || env.customers.created != 1 {
		t.Fatalf("unexpected second result %+v (%d created)", second, env.customers.created)
	}
}

func TestAdminRoutesNeedServiceRole(t *testing.T) {
	env := newTestEnv(t)
	bundle := `{"swirdle": [{"for_date": "2026-05-01", "word": "PETIT", "points_award": 6}]}`

	expectStatus(t, env.do(t, call{method: "POST", path: "/api/admin/content", body: bundle}), http.StatusForbidden)

	rec := env.do(t, call{method: "POST", path: "/api/admin/content", body: bundle, headers: map[string]string{"apikey": serviceKey}})
	expectStatus(t, rec, http.StatusOK)
	if w, _ := env.db.GetSwirdleForDate(context.Background(), "2026-05-01"); w == nil || w.Word != "PETIT" {
		t.Fatalf("bundle not loaded: %+v", w)
	}

	rec = env.do(t, call{method: "POST", path: "/api/admin/content", body: `{"swirdle": [{"for_date": "May 1"}]}`, headers: map[string]string{"apikey": serviceKey}})
	expectStatus(t, rec, http.StatusBadRequest)

	_, profile := env.signUp(t, "admin-eval@example.com")
	rec = env.do(t, call{method: "POST", path: "/api/admin/badges/evaluate/" + profile.ID, headers: map[string]string{"apikey": serviceKey}})
	expectStatus(t, rec, http.StatusOK)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest("POST", "/api/auth/signin", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}
}

func TestSignInLimitedPerIP(t *testing.T) {
	env := newTestEnv(t)
	creds := map[string]string{"email": "nobody@example.com", "password": "wrong-password"}

	for i := 0; i < 5; i++ {
		rec := env.do(t, call{method: "POST", path: "/api/auth/signin", body: creds})
		expectStatus(t, rec, http.StatusUnauthorized)
	}
	rec := env.do(t, call{method: "POST", path: "/api/auth/signin", body: creds})
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 should carry Retry-After")
	}
}

func TestSessionSocketNeedsIdentity(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "socket@example.com")

	rec := env.do(t, call{method: "POST", path: "/api/sessions", body: map[string]string{"host_user_id": "host-1"}})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		Session store.GameSession `json:"session"`
	}
	decode(t, rec, &created)
	session := created.Session

	expectStatus(t, env.do(t, call{method: "GET", path: "/ws/sessions/" + session.ID}), http.StatusBadRequest)
	expectStatus(t, env.do(t, call{method: "GET", path: "/ws/sessions/" + session.ID + "?token=garbage"}), http.StatusUnauthorized)
	expectStatus(t, env.do(t, call{method: "GET", path: "/ws/sessions/missing?user_id=alice"}), http.StatusNotFound)

	// Identity and session check out; a plain GET then fails the upgrade itself.
	rec = env.do(t, call{method: "GET", path: "/ws/sessions/" + session.ID + "?token=" + token})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-websocket request status = %d, want 400 from the upgrader", rec.Code)
	}
}
