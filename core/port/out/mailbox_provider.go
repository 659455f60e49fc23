// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
	"fmt"

	"mailbox_server/core/domain"
)

// =============================================================================
// Mailbox Client Port
// =============================================================================

// MailboxClient is the narrow surface of the remote mail service used by the
// sync loop and the compose flow. Every call needs a valid session.
type MailboxClient interface {
	// ListMessageIDs lists ids matching query. An empty query is the default
	// inbox view.
	ListMessageIDs(ctx context.Context, sess *domain.Session, query string, maxResults int) ([]domain.MessageSummary, error)
	GetMessageDetail(ctx context.Context, sess *domain.Session, id string, format domain.MessageFormat) (*domain.MessageDetail, error)
	// SendRawMessage submits an encoded envelope. Acceptance is not delivery.
	SendRawMessage(ctx context.Context, sess *domain.Session, raw string) error
	// ArchiveMessage removes id from the inbox. Archiving twice is not an error.
	ArchiveMessage(ctx context.Context, sess *domain.Session, id string) error
}

// ProfileReader resolves the address of the authenticated mailbox.
type ProfileReader interface {
	GetProfileEmail(ctx context.Context, sess *domain.Session) (string, error)
}

// =============================================================================
// Provider Errors
// =============================================================================

type ProviderErrorKind string

const (
	ProviderErrAuth    ProviderErrorKind = "auth_error"    // credential rejected, sign in again
	ProviderErrNetwork ProviderErrorKind = "network_error" // transport failure
	ProviderErrAPI     ProviderErrorKind = "api_error"     // request rejected by the service
)

// ProviderError is the failure of one remote call.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Status   int // HTTP status for api errors, 0 otherwise
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.Kind == ProviderErrAPI && e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewAuthError(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrAuth, Message: message, Err: err}
}

func NewNetworkError(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrNetwork, Message: message, Err: err}
}

func NewAPIError(provider string, status int, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrAPI, Status: status, Message: message, Err: err}
}

// AsProviderError unwraps err to a *ProviderError.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsAuthError(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Kind == ProviderErrAuth
}

func IsNetworkError(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Kind == ProviderErrNetwork
}

// AsAPIError returns the api error carried by err, if any.
func AsAPIError(err error) (*ProviderError, bool) {
	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != ProviderErrAPI {
		return nil, false
	}
	return pe, true
}
