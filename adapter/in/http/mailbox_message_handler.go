package http

import (
	"strings"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/in"
	"mailbox_server/infra/middleware"
	"mailbox_server/pkg/apperr"
	"mailbox_server/pkg/logger"
	"mailbox_server/pkg/response"

	"github.com/emersion/go-message/mail"
	"github.com/gofiber/fiber/v2"
)

// SendRequest is the compose form.
type SendRequest struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// Validate applies the form rules: the body is always required, recipient
// and subject only for a new message.
func (r *SendRequest) Validate() error {
	if strings.TrimSpace(r.Body) == "" {
		return apperr.MissingField("body")
	}
	if r.ReplyToID != "" {
		return nil
	}
	if strings.TrimSpace(r.To) == "" {
		return apperr.MissingField("to")
	}
	if _, err := mail.ParseAddress(r.To); err != nil {
		return apperr.InvalidInput("to", "not a valid email address")
	}
	if strings.TrimSpace(r.Subject) == "" {
		return apperr.MissingField("subject")
	}
	return nil
}

type MessageHandler struct {
	compose in.ComposeUseCase
	sync    SyncController
}

func NewMessageHandler(compose in.ComposeUseCase, sync SyncController) *MessageHandler {
	return &MessageHandler{compose: compose, sync: sync}
}

func (h *MessageHandler) Register(app fiber.Router) {
	messages := app.Group("/messages")
	messages.Get("/:id/reply-draft", h.ReplyDraft)
	messages.Post("/send", h.Send)
}

// ReplyDraft pre-fills a reply to a fetched message.
func (h *MessageHandler) ReplyDraft(c *fiber.Ctx) error {
	sess, err := middleware.GetSession(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if id == "" {
		return apperr.MissingField("id")
	}

	draft, err := h.compose.ReplyDraftFor(c.UserContext(), sess, id)
	if err != nil {
		return apperr.FromProvider(err)
	}
	return response.OK(c, draft)
}

// Send sends a new message or a reply, then refreshes the mailbox.
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	sess, err := middleware.GetSession(c)
	if err != nil {
		return err
	}

	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx := c.UserContext()
	var draft *domain.ReplyDraft
	if req.ReplyToID != "" {
		if draft, err = h.compose.ReplyDraftFor(ctx, sess, req.ReplyToID); err != nil {
			return apperr.FromProvider(err)
		}
	}

	if err := h.compose.SendEmail(ctx, sess, req.To, req.Subject, req.Body, draft); err != nil {
		return apperr.FromProvider(err)
	}

	if h.sync != nil {
		if _, err := h.sync.Trigger(sess.ID); err != nil {
			logger.WithContext(ctx).WithError(err).Debug("Post-send refresh skipped")
		}
	}
	return response.OK(c, fiber.Map{"status": "sent"})
}
