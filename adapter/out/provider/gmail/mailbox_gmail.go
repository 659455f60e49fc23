// Package gmail implements the mailbox client on top of the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"
	"mailbox_server/pkg/httputil"
	"mailbox_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	providerName = "gmail"
	userID       = "me"
	labelInbox   = "INBOX"
)

// metadataHeaders are requested when only headers are needed.
var metadataHeaders = []string{
	domain.HeaderFrom, domain.HeaderSubject, domain.HeaderDate, domain.HeaderMessageID,
}

// Config holds Gmail client configuration.
type Config struct {
	// Endpoint overrides the Gmail base URL, e.g. for a local fake.
	Endpoint string
	// RequestTimeout bounds each call. Zero means no timeout.
	RequestTimeout time.Duration

	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// Client implements out.MailboxClient and out.ProfileReader for Gmail.
type Client struct {
	endpoint string
	base     *http.Client
	cb       *gobreaker.CircuitBreaker
}

var (
	_ out.MailboxClient = (*Client)(nil)
	_ out.ProfileReader = (*Client)(nil)
)

// New creates a Gmail client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Client{
		endpoint: cfg.Endpoint,
		base:     httputil.NewClient(httputil.WithTimeout(cfg.RequestTimeout)),
		cb:       gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// =============================================================================
// Mailbox Operations
// =============================================================================

// ListMessageIDs lists message ids. An empty query lists the inbox view.
func (c *Client) ListMessageIDs(ctx context.Context, sess *domain.Session, query string, maxResults int) ([]domain.MessageSummary, error) {
	svc, err := c.getService(ctx, sess)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List(userID).Context(ctx)
	if maxResults > 0 {
		call = call.MaxResults(int64(maxResults))
	}
	if query != "" {
		call = call.Q(query)
	}

	var resp *gmail.ListMessagesResponse
	err = c.executeWithCircuitBreaker("list", func() error {
		var callErr error
		resp, callErr = call.Do()
		return callErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to list messages")
	}

	summaries := make([]domain.MessageSummary, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		summaries = append(summaries, domain.MessageSummary{ID: m.Id})
	}
	return summaries, nil
}

// GetMessageDetail fetches one message. FormatMetadata returns headers and
// snippet without a payload tree.
func (c *Client) GetMessageDetail(ctx context.Context, sess *domain.Session, id string, format domain.MessageFormat) (*domain.MessageDetail, error) {
	svc, err := c.getService(ctx, sess)
	if err != nil {
		return nil, err
	}

	if format == "" {
		format = domain.FormatFull
	}
	call := svc.Users.Messages.Get(userID, id).Format(string(format)).Context(ctx)
	if format == domain.FormatMetadata {
		call = call.MetadataHeaders(metadataHeaders...)
	}

	var msg *gmail.Message
	err = c.executeWithCircuitBreaker("get", func() error {
		var callErr error
		msg, callErr = call.Do()
		return callErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message")
	}

	return convertMessage(msg, format), nil
}

// SendRawMessage submits a base64url envelope.
func (c *Client) SendRawMessage(ctx context.Context, sess *domain.Session, raw string) error {
	svc, err := c.getService(ctx, sess)
	if err != nil {
		return err
	}

	call := svc.Users.Messages.Send(userID, &gmail.Message{Raw: raw}).Context(ctx)
	err = c.executeWithCircuitBreaker("send", func() error {
		_, callErr := call.Do()
		return callErr
	})
	if err != nil {
		return wrapError(err, "failed to send message")
	}
	return nil
}

// ArchiveMessage removes the INBOX label. A not-modified answer counts as
// success.
func (c *Client) ArchiveMessage(ctx context.Context, sess *domain.Session, id string) error {
	svc, err := c.getService(ctx, sess)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{labelInbox}}
	call := svc.Users.Messages.Modify(userID, id, req).Context(ctx)
	err = c.executeWithCircuitBreaker("archive", func() error {
		_, callErr := call.Do()
		if googleapi.IsNotModified(callErr) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return wrapError(err, "failed to archive message")
	}
	return nil
}

// GetProfileEmail returns the address of the authenticated mailbox.
func (c *Client) GetProfileEmail(ctx context.Context, sess *domain.Session) (string, error) {
	svc, err := c.getService(ctx, sess)
	if err != nil {
		return "", err
	}

	var profile *gmail.Profile
	err = c.executeWithCircuitBreaker("profile", func() error {
		var callErr error
		profile, callErr = svc.Users.GetProfile(userID).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return "", wrapError(err, "failed to get profile")
	}
	return profile.EmailAddress, nil
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (c *Client) getService(ctx context.Context, sess *domain.Session) (*gmail.Service, error) {
	if sess == nil || sess.Token == nil {
		return nil, out.NewAuthError(providerName, "no session credential", nil)
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: sess.Token, Base: c.base.Transport},
		Timeout:   c.base.Timeout,
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, out.NewNetworkError(providerName, "failed to create gmail service", err)
	}
	return svc, nil
}

// executeWithCircuitBreaker runs fn through the breaker. Client errors and
// credential failures are passed through without counting as failures.
func (c *Client) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		err := fn()
		if err == nil {
			return nil, nil
		}
		if isClientError(err) {
			return nil, &nonCircuitError{err: err}
		}
		return nil, err
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}

	if err != nil {
		logger.WithFields(map[string]any{
			"operation": operation,
			"breaker":   c.cb.State().String(),
		}).WithError(err).Warn("Gmail call failed")
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func isClientError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
	}
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}

// wrapError classifies a failed call. 401 and 403, like a failed token
// refresh, mean the credential was rejected. Anything without an HTTP status
// is a transport failure.
func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return out.NewAuthError(providerName, "credential rejected", err)
		}
		msg := apiErr.Message
		if msg == "" {
			msg = defaultMsg
		}
		return out.NewAPIError(providerName, apiErr.Code, msg, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return out.NewAuthError(providerName, "token refresh failed", err)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out.NewNetworkError(providerName, "gmail circuit open", err)
	}
	return out.NewNetworkError(providerName, defaultMsg, err)
}
