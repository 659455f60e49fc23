package http

import (
	"context"
	"net/url"
	"strings"
	"time"

	"mailbox_server/core/domain"
	"mailbox_server/infra/middleware"
	"mailbox_server/pkg/apperr"
	"mailbox_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// LoginService drives the Google sign-in flow.
type LoginService interface {
	BeginLogin(ctx context.Context) (string, error)
	CompleteLogin(ctx context.Context, state, code string) (*domain.Session, string, error)
	Logout(ctx context.Context, id uuid.UUID)
}

// SessionWatcher starts and stops sync for a session.
type SessionWatcher interface {
	Watch(sess *domain.Session)
	Unwatch(id uuid.UUID)
}

// StreamDisconnector closes the event streams open for a session.
type StreamDisconnector interface {
	DisconnectSession(sessionID string)
}

type OAuthHandler struct {
	auth         LoginService
	watcher      SessionWatcher
	streams      StreamDisconnector
	frontendURL  string
	secureCookie bool
}

func NewOAuthHandler(auth LoginService, watcher SessionWatcher, streams StreamDisconnector, frontendURL string, secureCookie bool) *OAuthHandler {
	return &OAuthHandler{
		auth:         auth,
		watcher:      watcher,
		streams:      streams,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		secureCookie: secureCookie,
	}
}

// Register mounts the auth routes. Logout runs behind requireSession.
func (h *OAuthHandler) Register(app fiber.Router, requireSession fiber.Handler) {
	auth := app.Group("/auth")
	auth.Get("/login", h.Login)
	auth.Get("/callback", h.Callback)
	auth.Post("/logout", requireSession, h.Logout)
}

// Login redirects to the Google consent screen.
func (h *OAuthHandler) Login(c *fiber.Ctx) error {
	authURL, err := h.auth.BeginLogin(c.UserContext())
	if err != nil {
		logger.WithContext(c.UserContext()).WithError(err).Error("[OAuth Login] BeginLogin failed")
		return apperr.Internal(err)
	}
	return c.Redirect(authURL, fiber.StatusFound)
}

// Callback finishes the login, sets the session cookie and starts sync.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	log := logger.WithContext(c.UserContext())

	if errorParam := c.Query("error"); errorParam != "" {
		log.Warn("[OAuth Callback] Error from provider: %s - %s", errorParam, c.Query("error_description"))
		return h.redirectError(c, errorParam)
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		return h.redirectError(c, "missing_code")
	}
	if state == "" {
		log.Warn("[OAuth Callback] Missing state")
		return h.redirectError(c, "missing_state")
	}

	sess, token, err := h.auth.CompleteLogin(c.UserContext(), state, code)
	if err != nil {
		log.WithError(err).Error("[OAuth Callback] CompleteLogin failed")
		return h.redirectError(c, "oauth_failed")
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	h.watcher.Watch(sess)

	return c.Redirect(h.frontendURL+"/", fiber.StatusFound)
}

// Logout stops sync, closes open streams and forgets the session.
func (h *OAuthHandler) Logout(c *fiber.Ctx) error {
	sess, err := middleware.GetSession(c)
	if err != nil {
		return err
	}

	h.watcher.Unwatch(sess.ID)
	if h.streams != nil {
		h.streams.DisconnectSession(sess.ID.String())
	}
	h.auth.Logout(c.UserContext(), sess.ID)

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *OAuthHandler) redirectError(c *fiber.Ctx, code string) error {
	q := url.Values{}
	q.Set("error", code)
	return c.Redirect(h.frontendURL+"/?"+q.Encode(), fiber.StatusFound)
}
