package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewCode()
		assert.Len(t, code, 32, "16 random bytes hex encoded")
		assert.False(t, seen[code], "codes must not repeat")
		seen[code] = true
	}
}

func TestSessionUsable(t *testing.T) {
	expiry := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name   string
		active bool
		now    time.Time
		want   bool
	}{
		{"active before expiry", true, expiry.Add(-time.Minute), true},
		{"active at expiry", true, expiry, false},
		{"active after expiry", true, expiry.Add(time.Second), false},
		{"inactive before expiry", false, expiry.Add(-time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Session{Active: tc.active, ExpiresAt: expiry}
			assert.Equal(t, tc.want, s.Usable(tc.now))
		})
	}
}
