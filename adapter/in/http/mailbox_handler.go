package http

import (
	"errors"
	"time"

	"mailbox_server/adapter/in/worker"
	"mailbox_server/core/domain"
	"mailbox_server/core/service/mailbox"
	"mailbox_server/infra/middleware"
	"mailbox_server/pkg/apperr"
	"mailbox_server/pkg/logger"
	"mailbox_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SyncController is the scheduler as seen by the HTTP layer.
type SyncController interface {
	SessionWatcher
	Trigger(id uuid.UUID) (worker.TriggerStatus, error)
	Snapshot(id uuid.UUID) (worker.Snapshot, bool)
}

// MessageView is a fetched message as listed to the user.
type MessageView struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
	Body     string `json:"body"`
}

func newMessageView(d *domain.MessageDetail) MessageView {
	return MessageView{
		ID:       d.ID,
		ThreadID: d.ThreadID,
		From:     d.From(),
		Subject:  d.Subject(),
		Date:     d.Date(),
		Snippet:  d.Snippet,
		Body:     mailbox.ExtractBody(d),
	}
}

func newMessageViews(details []*domain.MessageDetail) []MessageView {
	views := make([]MessageView, 0, len(details))
	for _, d := range details {
		views = append(views, newMessageView(d))
	}
	return views
}

// MailboxResponse is the last completed pass of a session.
type MailboxResponse struct {
	Received   []MessageView `json:"received"`
	Sent       []MessageView `json:"sent"`
	Logs       []string      `json:"logs"`
	NextRunAt  *time.Time    `json:"next_run_at,omitempty"`
	InProgress bool          `json:"in_progress"`
	Polling    bool          `json:"polling"`
	LastError  string        `json:"last_error,omitempty"`
}

func newMailboxResponse(snap worker.Snapshot) MailboxResponse {
	resp := MailboxResponse{
		Received:   []MessageView{},
		Sent:       []MessageView{},
		Logs:       []string{},
		InProgress: snap.InProgress,
		Polling:    snap.Polling,
		LastError:  snap.LastError,
	}
	if r := snap.Result; r != nil {
		resp.Received = newMessageViews(r.Received)
		resp.Sent = newMessageViews(r.Sent)
		if r.Logs != nil {
			resp.Logs = r.Logs
		}
		if snap.Polling && !r.NextRunAt.IsZero() {
			next := r.NextRunAt
			resp.NextRunAt = &next
		}
	}
	return resp
}

type MailboxHandler struct {
	sync SyncController
}

func NewMailboxHandler(sync SyncController) *MailboxHandler {
	return &MailboxHandler{sync: sync}
}

func (h *MailboxHandler) Register(app fiber.Router) {
	app.Get("/me", h.Me)
	app.Get("/mailbox", h.Get)
	app.Post("/mailbox/refresh", h.Refresh)
}

// Me returns the signed-in account.
func (h *MailboxHandler) Me(c *fiber.Ctx) error {
	sess, err := middleware.GetSession(c)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"session_id": sess.ID.String(),
		"email":      sess.Email,
		"expires_at": sess.ExpiresAt,
	})
}

// Get returns the last snapshot. A session the scheduler does not know yet
// is registered, which starts its first pass.
func (h *MailboxHandler) Get(c *fiber.Ctx) error {
	sess, err := middleware.GetSession(c)
	if err != nil {
		return err
	}

	snap, ok := h.sync.Snapshot(sess.ID)
	if !ok {
		h.sync.Watch(sess)
		snap, _ = h.sync.Snapshot(sess.ID)
	}
	return response.OK(c, newMailboxResponse(snap))
}

// Refresh requests a pass now. An already running pass is reported instead
// of starting a second one.
func (h *MailboxHandler) Refresh(c *fiber.Ctx) error {
	sess, err := middleware.GetSession(c)
	if err != nil {
		return err
	}

	status, err := h.sync.Trigger(sess.ID)
	if errors.Is(err, worker.ErrUnknownSession) {
		h.sync.Watch(sess)
		status, err = worker.TriggerStarted, nil
	}
	switch {
	case errors.Is(err, worker.ErrSessionExpired):
		return apperr.Unauthorized("session expired")
	case errors.Is(err, worker.ErrSchedulerStopped):
		return apperr.Unavailable("mailbox sync is not running")
	case err != nil:
		return apperr.Internal(err)
	}

	logger.WithContext(c.UserContext()).Debug("Manual refresh: %s", status)
	return response.Accepted(c, fiber.Map{"status": string(status)})
}
