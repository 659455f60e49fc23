// Package in defines inbound ports (use cases) driven by the HTTP and worker adapters.
package in

import (
	"context"
	"time"

	"mailbox_server/core/domain"
)

// SyncUseCase runs one sync pass for a session.
type SyncUseCase interface {
	RunSync(ctx context.Context, sess *domain.Session) (*domain.SyncResult, error)
	Interval() time.Duration
}

// ComposeUseCase sends mail on behalf of a session.
type ComposeUseCase interface {
	SendEmail(ctx context.Context, sess *domain.Session, to, subject, body string, draft *domain.ReplyDraft) error
	ReplyDraftFor(ctx context.Context, sess *domain.Session, messageID string) (*domain.ReplyDraft, error)
}
