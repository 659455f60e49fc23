package middleware

import (
	"context"
	"strings"

	"mailbox_server/core/domain"
	"mailbox_server/pkg/apperr"
	"mailbox_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const (
	// SessionCookie carries the signed session token.
	SessionCookie = "mailbox_session"

	SessionLocal   = "session"
	SessionIDLocal = "session_id"
)

// Authenticator resolves a session token to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
}

// SessionAuth requires a valid session, read from the session cookie or a
// bearer Authorization header.
func SessionAuth(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(SessionCookie)
		if token == "" {
			if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token == "" {
			return apperr.Unauthorized("sign in required")
		}

		sess, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			logger.WithContext(c.UserContext()).WithError(err).Debug("Session rejected")
			return apperr.Unauthorized("session invalid or expired")
		}

		sid := sess.ID.String()
		c.Locals(SessionLocal, sess)
		c.Locals(SessionIDLocal, sid)
		c.SetUserContext(context.WithValue(c.UserContext(), logger.SessionIDKey, sid))
		return c.Next()
	}
}

// GetSession returns the session stored by SessionAuth.
func GetSession(c *fiber.Ctx) (*domain.Session, error) {
	sess, ok := c.Locals(SessionLocal).(*domain.Session)
	if !ok || sess == nil {
		return nil, apperr.Unauthorized("sign in required")
	}
	return sess, nil
}
