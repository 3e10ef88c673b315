package auth

import (
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

const (
	guestCookieName = "guest_progress"
	guestCookieAge  = 30 * 24 * 60 * 60 // 30 days
)

// GuestCookie keeps a guest's progress in a signed, encrypted cookie until
// they sign up and merge it. The cookie carries no authority.
type GuestCookie struct {
	codec *securecookie.SecureCookie
}

func NewGuestCookie(hashKey, blockKey []byte) *GuestCookie {
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(guestCookieAge)
	return &GuestCookie{codec: codec}
}

func (g *GuestCookie) Write(w http.ResponseWriter, value interface{}) error {
	encoded, err := g.codec.Encode(guestCookieName, value)
	if err != nil {
		return fmt.Errorf("failed to encode guest cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     guestCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   guestCookieAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read decodes the cookie into dst. It reports false when there is no
// cookie; a tampered or expired cookie is an error.
func (g *GuestCookie) Read(r *http.Request, dst interface{}) (bool, error) {
	cookie, err := r.Cookie(guestCookieName)
	if err != nil {
		return false, nil
	}
	if err := g.codec.Decode(guestCookieName, cookie.Value, dst); err != nil {
		return false, fmt.Errorf("failed to decode guest cookie: %w", err)
	}
	return true, nil
}

func (g *GuestCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     guestCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
