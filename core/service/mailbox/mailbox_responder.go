package mailbox

import (
	"context"
	"fmt"
	"strings"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"
	"mailbox_server/pkg/logger"
)

// =============================================================================
// Confirmation Responder
// =============================================================================

const (
	// DefaultConfirmSender is the automated sender whose requests are answered.
	DefaultConfirmSender = "relayer@emailwallet.org"

	// TriggerPhrase is matched case-insensitively against the decoded body.
	TriggerPhrase = `please reply "confirm" to this email`

	// ConfirmBody is the exact body of every automated reply.
	ConfirmBody = "confirm"
)

// ConfirmationQuery selects pending confirmation requests from sender.
func ConfirmationQuery(sender string) string {
	return fmt.Sprintf("from:%s in:inbox", sender)
}

// ConfirmedReplyQuery selects a reply to subject already sent to sender.
func ConfirmedReplyQuery(sender, subject string) string {
	return fmt.Sprintf(`in:sent to:%s subject:"%s%s" "%s"`, sender, domain.ReplyPrefix, subject, ConfirmBody)
}

// HasTriggerPhrase reports whether body asks for a confirm reply.
func HasTriggerPhrase(body string) bool {
	return strings.Contains(strings.ToLower(body), TriggerPhrase)
}

// Responder answers confirmation requests and archives them.
type Responder struct {
	client out.MailboxClient
	sender string
}

func NewResponder(client out.MailboxClient, sender string) *Responder {
	if sender == "" {
		sender = DefaultConfirmSender
	}
	return &Responder{client: client, sender: sender}
}

// Sender returns the address whose requests are handled.
func (r *Responder) Sender() string {
	return r.sender
}

// Process handles one fetched confirmation-pattern message and records its
// outcome in status. When any remote call fails the message is left in the
// inbox so the next pass picks it up again.
func (r *Responder) Process(ctx context.Context, sess *domain.Session, detail *domain.MessageDetail, status *domain.StatusLog) (domain.ConfirmOutcome, error) {
	label := messageLabel(detail)

	outcome, err := r.respond(ctx, sess, detail)
	if err != nil {
		status.Add(fmt.Sprintf("%s: failed — %v", label, err))
		return domain.OutcomeFailed, err
	}

	if err := r.client.ArchiveMessage(ctx, sess, detail.ID); err != nil {
		status.Add(fmt.Sprintf("%s: %s, archive failed — %v", label, outcomeText(outcome), err))
		return domain.OutcomeFailed, err
	}

	status.Add(fmt.Sprintf("%s: %s", label, outcomeText(outcome)))
	logger.WithFields(map[string]any{
		"session_id": sess.ID.String(),
		"message_id": detail.ID,
		"outcome":    string(outcome),
	}).Info("Processed confirmation message")

	return outcome, nil
}

func (r *Responder) respond(ctx context.Context, sess *domain.Session, detail *domain.MessageDetail) (domain.ConfirmOutcome, error) {
	if !HasTriggerPhrase(ExtractBody(detail)) {
		return domain.OutcomeIgnored, nil
	}

	existing, err := r.client.ListMessageIDs(ctx, sess, ConfirmedReplyQuery(r.sender, detail.Subject()), 1)
	if err != nil {
		return domain.OutcomeFailed, fmt.Errorf("duplicate check: %w", err)
	}
	if len(existing) > 0 {
		return domain.OutcomeAlreadyConfirmed, nil
	}

	raw := BuildEnvelope("", "", ConfirmBody, domain.ReplyTargetOf(detail))
	if err := r.client.SendRawMessage(ctx, sess, raw); err != nil {
		return domain.OutcomeFailed, fmt.Errorf("send confirm: %w", err)
	}
	return domain.OutcomeAutoReplied, nil
}

func outcomeText(o domain.ConfirmOutcome) string {
	switch o {
	case domain.OutcomeIgnored:
		return "ignored — no trigger phrase"
	case domain.OutcomeAlreadyConfirmed:
		return "already confirmed"
	case domain.OutcomeAutoReplied:
		return "auto-replied"
	default:
		return string(o)
	}
}

func messageLabel(detail *domain.MessageDetail) string {
	if s := detail.Subject(); s != "" {
		return fmt.Sprintf("%q", s)
	}
	return "message " + detail.ID
}
