package domain

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Session is an authenticated mailbox login. Sessions are held in memory only
// and are gone after logout or a process restart.
type Session struct {
	ID        uuid.UUID          `json:"id"`
	Email     string             `json:"email"`
	Token     oauth2.TokenSource `json:"-"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
