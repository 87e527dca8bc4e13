package out

import (
	"context"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

// MailProvider is the mailbox API the triage engine drives.
type MailProvider interface {
	// ListNewMessageIDs returns inbox additions after cursor and the provider's
	// newest cursor.
	ListNewMessageIDs(ctx context.Context, cursor uint64) ([]string, uint64, error)
	// CurrentCursor returns the provider's newest cursor without listing changes.
	CurrentCursor(ctx context.Context) (uint64, error)
	GetMessage(ctx context.Context, messageID string) (*domain.MailMessage, error)
	ListLabels(ctx context.Context) ([]ProviderLabel, error)
	CreateLabel(ctx context.Context, name string) (ProviderLabel, error)
	// ApplyLabels adds every label id in a single call.
	ApplyLabels(ctx context.Context, messageID string, labelIDs []string) error
	Archive(ctx context.Context, messageID string) error
	Watch(ctx context.Context, topic string) (uint64, time.Time, error)
}

// ProviderLabel is a label as the provider knows it.
type ProviderLabel struct {
	ID   string
	Name string
}

// MailProviderFactory opens a provider session for an account, refreshing
// credentials as needed.
type MailProviderFactory interface {
	ForAccount(ctx context.Context, account *domain.Account) (MailProvider, error)
}

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrSyncRequired ProviderErrorCode = "full_sync_required"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the taxonomy error first so apperr helpers classify it.
func (e *ProviderError) Unwrap() error {
	return e.Kind()
}

// Kind maps the provider code onto the application error taxonomy.
func (e *ProviderError) Kind() *apperr.AppError {
	switch e.Code {
	case ProviderErrAuth, ProviderErrTokenExpired:
		return apperr.AuthExpired(e.Provider, e.Err)
	case ProviderErrNotFound, ProviderErrSyncRequired:
		return apperr.Wrap(e.Err, apperr.CodeNotFound, e.Message, 404)
	case ProviderErrRateLimit, ProviderErrNetwork, ProviderErrServer:
		return apperr.TransientProvider(e.Provider, e.Err)
	}
	return apperr.ExternalError(e.Provider, e.Err)
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
