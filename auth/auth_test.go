package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
	"winequiz/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db, NewTokenIssuer("test-secret"))
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	profile, token, err := svc.SignUp(ctx, SignUpInput{
		Email:    "  Sommelier@Example.com ",
		Password: "grenache42",
		Alias:    "<b>Somm</b>",
		Country:  "fr",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if profile.Email != "sommelier@example.com" || profile.Alias != "Somm" || profile.Country != "FR" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	id, err := svc.Authenticate(token)
	if err != nil || id != profile.ID {
		t.Fatalf("Authenticate = %q, %v", id, err)
	}

	if _, _, err := svc.SignUp(ctx, SignUpInput{Email: "sommelier@example.com", Password: "grenache42"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, _, err := svc.SignIn(ctx, "sommelier@example.com", "wrongpass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	signedIn, _, err := svc.SignIn(ctx, "SOMMELIER@example.com", "grenache42")
	if err != nil || signedIn.ID != profile.ID {
		t.Fatalf("SignIn = %+v, %v", signedIn, err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := newTestService(t)
	tests := []struct {
		name string
		in   SignUpInput
		want error
	}{
		{"bad email", SignUpInput{Email: "not-an-email", Password: "grenache42"}, ErrInvalidEmail},
		{"short password", SignUpInput{Email: "a@b.co", Password: "g42"}, ErrInvalidPassword},
		{"letters only", SignUpInput{Email: "a@b.co", Password: "grenachemerlot"}, ErrInvalidPassword},
		{"alias too short", SignUpInput{Email: "a@b.co", Password: "grenache42", Alias: "x"}, ErrInvalidAlias},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.SignUp(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTokenExpiryAndSecret(t *testing.T) {
	issuer := NewTokenIssuer("one")
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return start }

	token, err := issuer.Issue("profile-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewTokenIssuer("two").Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret should fail, got %v", err)
	}

	issuer.now = func() time.Time { return start.Add(tokenTTL + time.Minute) }
	if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token should fail, got %v", err)
	}
}

func TestGuestCookieRoundTrip(t *testing.T) {
	cookie := NewGuestCookie([]byte("hash-key-for-tests-0123456789abc"), []byte("block-key-16byte"))

	type progress struct {
		Points int
	}

	rec := httptest.NewRecorder()
	if err := cookie.Write(rec, progress{Points: 12}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	var got progress
	ok, err := cookie.Read(req, &got)
	if err != nil || !ok || got.Points != 12 {
		t.Fatalf("Read = %v, %v, %+v", ok, err, got)
	}

	empty := httptest.NewRequest(http.MethodGet, "/", nil)
	if ok, err := cookie.Read(empty, &got); ok || err != nil {
		t.Fatalf("missing cookie should be (false, nil), got %v %v", ok, err)
	}

	tampered := httptest.NewRequest(http.MethodGet, "/", nil)
	tampered.AddCookie(&http.Cookie{Name: guestCookieName, Value: "garbage"})
	if _, err := cookie.Read(tampered, &got); err == nil {
		t.Fatal("tampered cookie should fail")
	}
}
