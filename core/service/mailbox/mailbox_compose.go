package mailbox

import (
	"context"
	"fmt"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"
	"mailbox_server/pkg/logger"
)

// ComposeService sends new messages and replies on behalf of a session.
type ComposeService struct {
	client out.MailboxClient
}

func NewComposeService(client out.MailboxClient) *ComposeService {
	return &ComposeService{client: client}
}

// SendEmail sends a message. With a draft the message is a threaded reply and
// to/subject are ignored.
func (s *ComposeService) SendEmail(ctx context.Context, sess *domain.Session, to, subject, body string, draft *domain.ReplyDraft) error {
	var target *domain.ReplyTarget
	if draft != nil {
		target = draft.Target()
	}

	raw := BuildEnvelope(to, subject, body, target)
	if err := s.client.SendRawMessage(ctx, sess, raw); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	logger.WithContext(ctx).
		WithField("session_id", sess.ID.String()).
		WithField("reply", draft != nil).
		Info("Email sent")
	return nil
}

// ReplyDraftFor fetches the headers of messageID and pre-fills a reply.
func (s *ComposeService) ReplyDraftFor(ctx context.Context, sess *domain.Session, messageID string) (*domain.ReplyDraft, error) {
	detail, err := s.client.GetMessageDetail(ctx, sess, messageID, domain.FormatMetadata)
	if err != nil {
		return nil, fmt.Errorf("load original: %w", err)
	}
	return domain.NewReplyDraft(detail), nil
}
