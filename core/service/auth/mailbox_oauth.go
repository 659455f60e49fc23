package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"
	"mailbox_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// StateTTL is how long a login state stays valid.
const StateTTL = 10 * time.Minute

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// OAuthConfig holds Google OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
}

// Service signs users in with Google and tracks their sessions.
type Service struct {
	oauth    *oauth2.Config
	states   out.OAuthStateStore
	profiles out.ProfileReader
	sessions *SessionStore
	tokens   *TokenIssuer
	now      func() time.Time
	onEnd    func(id uuid.UUID)
}

func NewService(cfg *OAuthConfig, states out.OAuthStateStore, profiles out.ProfileReader, sessions *SessionStore, tokens *TokenIssuer) *Service {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gmail.GmailModifyScope},
			Endpoint:     endpoint,
		},
		states:   states,
		profiles: profiles,
		sessions: sessions,
		tokens:   tokens,
		now:      time.Now,
	}
}

// OnSessionEnd registers fn to be called when a session is found expired.
func (s *Service) OnSessionEnd(fn func(id uuid.UUID)) {
	s.onEnd = fn
}

// BeginLogin stores a fresh state and returns the consent URL.
func (s *Service) BeginLogin(ctx context.Context) (string, error) {
	state, err := generateSecureState()
	if err != nil {
		return "", err
	}
	if err := s.states.StoreState(ctx, state, StateTTL); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteLogin validates state, exchanges code and creates a session. The
// returned token is the signed session cookie value.
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (*domain.Session, string, error) {
	if err := s.states.ValidateState(ctx, state); err != nil {
		return nil, "", fmt.Errorf("validate state: %w", err)
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("exchange code: %w", err)
	}

	now := s.now()
	sess := &domain.Session{
		ID: uuid.New(),
		// Refreshes happen outside any request, so the source must not
		// inherit the request context.
		Token:     s.oauth.TokenSource(context.WithoutCancel(ctx), tok),
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.TTL()),
	}

	email, err := s.profiles.GetProfileEmail(ctx, sess)
	if err != nil {
		return nil, "", fmt.Errorf("load profile: %w", err)
	}
	sess.Email = email

	signed, _, err := s.tokens.Issue(sess.ID)
	if err != nil {
		return nil, "", err
	}
	s.sessions.Put(sess)

	logger.WithContext(ctx).
		WithField("session_id", sess.ID.String()).
		Info("Signed in %s", email)
	return sess, signed, nil
}

// Authenticate resolves a session cookie to its live session.
func (s *Service) Authenticate(_ context.Context, token string) (*domain.Session, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.IsExpired(s.now()) {
		s.sessions.Delete(id)
		if s.onEnd != nil {
			s.onEnd(id)
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Logout forgets the session.
func (s *Service) Logout(ctx context.Context, id uuid.UUID) {
	if s.sessions.Delete(id) {
		logger.WithContext(ctx).WithField("session_id", id.String()).Info("Signed out")
	}
}

func (s *Service) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

func generateSecureState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secure state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
