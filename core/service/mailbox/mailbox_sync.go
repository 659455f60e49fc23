package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"
	"mailbox_server/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Sync Loop
// =============================================================================

const (
	DefaultFetchSize = 20

	// CompletedEntry closes the status log of a pass that ran to the end.
	CompletedEntry = "fetched, processed, archived"
)

// SyncConfig tunes a SyncService. Zero values fall back to defaults.
type SyncConfig struct {
	Interval  time.Duration
	FetchSize int
	// DetailConcurrency caps concurrent detail fetches per listing; 0 issues
	// all of them at once.
	DetailConcurrency int
	Now               func() time.Time
}

func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Interval:  domain.DefaultSyncInterval,
		FetchSize: DefaultFetchSize,
		Now:       time.Now,
	}
}

// SyncService runs sync passes for a session.
type SyncService struct {
	client    out.MailboxClient
	responder *Responder
	cfg       SyncConfig
}

func NewSyncService(client out.MailboxClient, responder *Responder, cfg *SyncConfig) *SyncService {
	def := DefaultSyncConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.FetchSize <= 0 {
		c.FetchSize = def.FetchSize
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	if responder == nil {
		responder = NewResponder(client, DefaultConfirmSender)
	}
	return &SyncService{client: client, responder: responder, cfg: c}
}

// Interval returns the delay between scheduled passes.
func (s *SyncService) Interval() time.Duration {
	return s.cfg.Interval
}

// RunSync performs one pass: answer and archive confirmation requests, then
// fetch the inbox view and split it into received and sent mail.
//
// The result is never nil and always carries the status log. The error is
// non-nil when the pass stopped early; an auth error stops it at once, while a
// failure of the confirmation stage alone is logged and the inbox stage still
// runs.
func (s *SyncService) RunSync(ctx context.Context, sess *domain.Session) (*domain.SyncResult, error) {
	status := &domain.StatusLog{}
	status.Reset()

	result := &domain.SyncResult{
		Received:  []*domain.MessageDetail{},
		Sent:      []*domain.MessageDetail{},
		StartedAt: s.cfg.Now(),
	}
	log := logger.WithContext(ctx).WithField("session_id", sess.ID.String())

	if err := s.processConfirmations(ctx, sess, status); err != nil {
		log.WithError(err).Warn("Confirmation stage failed")
		if out.IsAuthError(err) {
			return s.finish(result, status, err), err
		}
	}

	details, err := s.fetchDetails(ctx, sess, "")
	if err != nil {
		status.Add(fmt.Sprintf("inbox fetch failed — %v", err))
		log.WithError(err).Error("Inbox fetch failed")
		return s.finish(result, status, err), err
	}

	for _, d := range details {
		if strings.Contains(d.From(), sess.Email) {
			result.Sent = append(result.Sent, d)
		} else {
			result.Received = append(result.Received, d)
		}
	}

	status.Add(CompletedEntry)
	s.finish(result, status, nil)

	log.WithDuration(result.FinishedAt.Sub(result.StartedAt)).
		Info("Sync pass completed: received=%d sent=%d", len(result.Received), len(result.Sent))
	return result, nil
}

func (s *SyncService) finish(result *domain.SyncResult, status *domain.StatusLog, err error) *domain.SyncResult {
	if err != nil && out.IsAuthError(err) {
		status.Add("authentication failed — sign in again")
	}
	now := s.cfg.Now()
	result.Logs = status.Entries()
	result.FinishedAt = now
	result.NextRunAt = now.Add(s.cfg.Interval)
	return result
}

// processConfirmations runs the responder on each pending confirmation
// request. A failing message does not stop the others unless the credential
// was rejected.
func (s *SyncService) processConfirmations(ctx context.Context, sess *domain.Session, status *domain.StatusLog) error {
	details, err := s.fetchDetails(ctx, sess, ConfirmationQuery(s.responder.Sender()))
	if err != nil {
		status.Add(fmt.Sprintf("confirmation check failed — %v", err))
		return err
	}

	var firstErr error
	for _, d := range details {
		_, err := s.responder.Process(ctx, sess, d, status)
		if err == nil {
			continue
		}
		if out.IsAuthError(err) {
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		logger.WithError(firstErr).Warn("Some confirmation messages failed and stay in the inbox")
	}
	return nil
}

// fetchDetails lists ids for query and fetches every full detail
// concurrently. One failing fetch fails the whole batch.
func (s *SyncService) fetchDetails(ctx context.Context, sess *domain.Session, query string) ([]*domain.MessageDetail, error) {
	ids, err := s.client.ListMessageIDs(ctx, sess, query, s.cfg.FetchSize)
	if err != nil {
		return nil, err
	}

	details := make([]*domain.MessageDetail, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.DetailConcurrency > 0 {
		g.SetLimit(s.cfg.DetailConcurrency)
	}

	for i, summary := range ids {
		g.Go(func() error {
			d, err := s.client.GetMessageDetail(gctx, sess, summary.ID, domain.FormatFull)
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}
