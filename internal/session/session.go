// Package session issues and reads browser session identifiers.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// CookieName is the session-id cookie attached to every browser.
const CookieName = "glmr_sid"

// MaxAge matches the token retention window.
const MaxAge = 7 * 24 * time.Hour

// Manager reads and issues session-id cookies. Secure controls the
// cookie's Secure attribute and should be on outside local development.
type Manager struct {
	secure bool
}

// NewManager creates a session manager. secure marks issued cookies
// Secure so browsers only send them over TLS.
func NewManager(secure bool) *Manager {
	return &Manager{secure: secure}
}

// Get returns the request's session id, or false when no cookie is
// present.
func (m *Manager) Get(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// GetOrCreate returns the request's session id, issuing a fresh one on
// the response when the request carries none.
func (m *Manager) GetOrCreate(w http.ResponseWriter, r *http.Request) (string, error) {
	if id, ok := m.Get(r); ok {
		return id, nil
	}

	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return id, nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
