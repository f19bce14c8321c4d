// Package session carries the signed-in identity. Authentication itself
// happens at an external provider; the daemon only reads the resulting
// session and threads it explicitly into every component that needs it.
package session

import (
	"errors"
	"sync"

	"chatterly/pkg/models"
)

// ErrNoSession is returned when an operation requires a signed-in account
// and none is present.
var ErrNoSession = errors.New("session: not signed in")

// Session is the identity yielded by the external provider once
// authenticated. Immutable for its lifetime.
type Session struct {
	AccountID   string `json:"account_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Account returns the session's identity as a profile record.
func (s Session) Account() models.Account {
	return models.Account{ID: s.AccountID, DisplayName: s.DisplayName, AvatarURL: s.AvatarURL}
}

// Holder stores the current session: populated once after authentication,
// cleared on sign-out.
type Holder struct {
	mu  sync.RWMutex
	cur *Session
}

// Set installs the session.
func (h *Holder) Set(s Session) {
	h.mu.Lock()
	h.cur = &s
	h.mu.Unlock()
}

// Clear removes the session.
func (h *Holder) Clear() {
	h.mu.Lock()
	h.cur = nil
	h.mu.Unlock()
}

// Get returns the current session, or ErrNoSession.
func (h *Holder) Get() (Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cur == nil {
		return Session{}, ErrNoSession
	}
	return *h.cur, nil
}
