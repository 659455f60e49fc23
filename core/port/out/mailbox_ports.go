package out

import (
	"context"
	"errors"
	"time"

	"mailbox_server/core/domain"
)

// ErrStateNotFound is returned when an OAuth state is unknown or expired.
var ErrStateNotFound = errors.New("oauth state not found")

// OAuthStateStore keeps login states for CSRF protection. A state validates once.
type OAuthStateStore interface {
	StoreState(ctx context.Context, state string, ttl time.Duration) error
	ValidateState(ctx context.Context, state string) error
}

// SyncPublisher receives every completed sync pass of a session.
type SyncPublisher interface {
	PublishSync(ctx context.Context, sessionID string, result *domain.SyncResult) error
}
