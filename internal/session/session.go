// Package session owns QR attendance sessions: time-boxed codes tied to
// one timetable slot, with at most one active, unexpired session per slot.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Session is one live attendance window.
type Session struct {
	ID        string
	SlotID    string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Active    bool
}

// Usable reports whether the session accepts submissions at the given
// instant. Expiry is checked lazily here, not only by the sweep.
func (s Session) Usable(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// NewCode returns an unguessable session code: 16 random bytes, hex
// encoded. Collision probability is negligible; the unique constraint on
// qr_sessions.code is the backstop.
func NewCode() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
