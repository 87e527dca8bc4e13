// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

const (
	providerName = "gmail"
	userID       = "me"
	inboxLabel   = "INBOX"
)

// GmailProvider implements out.MailProvider for one account's Gmail session.
type GmailProvider struct {
	svc *gmail.Service
	cb  *gobreaker.CircuitBreaker
}

var _ out.MailProvider = (*GmailProvider)(nil)

func newGmailProvider(svc *gmail.Service, cb *gobreaker.CircuitBreaker) *GmailProvider {
	return &GmailProvider{svc: svc, cb: cb}
}

// NewCircuitBreaker returns the breaker shared by every Gmail session.
func NewCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,                // Half-open 상태에서 허용할 요청 수
		Interval:    60 * time.Second, // Closed 상태에서 카운터 리셋 간격
		Timeout:     30 * time.Second, // Open 상태 유지 시간
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 연속 5회 실패 또는 60% 이상 실패율 (최소 10회 요청)
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// ListNewMessageIDs pages through inbox additions after cursor.
func (p *GmailProvider) ListNewMessageIDs(ctx context.Context, cursor uint64) ([]string, uint64, error) {
	var (
		ids       []string
		seen      = make(map[string]bool)
		latest    = cursor
		pageToken string
	)

	for {
		call := p.svc.Users.History.List(userID).
			StartHistoryId(cursor).
			HistoryTypes("messageAdded").
			LabelId(inboxLabel).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListHistoryResponse
		err := p.execute("History.List", func() error {
			var apiErr error
			resp, apiErr = call.Do()
			return apiErr
		})
		if err != nil {
			if isStatus(err, http.StatusNotFound) {
				return nil, 0, out.NewProviderError(providerName, out.ProviderErrSyncRequired, "history cursor expired", err, false)
			}
			return nil, 0, wrapError(err, "failed to list history")
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}
		if resp.HistoryId > latest {
			latest = resp.HistoryId
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, latest, nil
}

// CurrentCursor reads the mailbox's newest history id.
func (p *GmailProvider) CurrentCursor(ctx context.Context) (uint64, error) {
	var profile *gmail.Profile
	err := p.execute("GetProfile", func() error {
		var apiErr error
		profile, apiErr = p.svc.Users.GetProfile(userID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return 0, wrapError(err, "failed to get profile")
	}
	return profile.HistoryId, nil
}

func (p *GmailProvider) GetMessage(ctx context.Context, messageID string) (*domain.MailMessage, error) {
	var msg *gmail.Message
	err := p.execute("Messages.Get", func() error {
		var apiErr error
		msg, apiErr = p.svc.Users.Messages.Get(userID, messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message")
	}
	return convertMessage(msg), nil
}

func (p *GmailProvider) ListLabels(ctx context.Context) ([]out.ProviderLabel, error) {
	var resp *gmail.ListLabelsResponse
	err := p.execute("Labels.List", func() error {
		var apiErr error
		resp, apiErr = p.svc.Users.Labels.List(userID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to list labels")
	}

	labels := make([]out.ProviderLabel, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, out.ProviderLabel{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// CreateLabel creates a visible user label. A label that already exists under
// the same name is returned as is.
func (p *GmailProvider) CreateLabel(ctx context.Context, name string) (out.ProviderLabel, error) {
	req := &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}

	var created *gmail.Label
	err := p.execute("Labels.Create", func() error {
		var apiErr error
		created, apiErr = p.svc.Users.Labels.Create(userID, req).Context(ctx).Do()
		return apiErr
	})
	if err == nil {
		return out.ProviderLabel{ID: created.Id, Name: created.Name}, nil
	}
	if !isStatus(err, http.StatusConflict) {
		return out.ProviderLabel{}, wrapError(err, "failed to create label")
	}

	existing, lerr := p.ListLabels(ctx)
	if lerr != nil {
		return out.ProviderLabel{}, lerr
	}
	for _, l := range existing {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return out.ProviderLabel{}, wrapError(err, "failed to create label")
}

func (p *GmailProvider) ApplyLabels(ctx context.Context, messageID string, labelIDs []string) error {
	if len(labelIDs) == 0 {
		return nil
	}
	return p.modifyLabels(ctx, messageID, labelIDs, nil)
}

// Archive removes the message from the inbox.
func (p *GmailProvider) Archive(ctx context.Context, messageID string) error {
	return p.modifyLabels(ctx, messageID, nil, []string{inboxLabel})
}

// Watch registers inbox push notifications on topic.
func (p *GmailProvider) Watch(ctx context.Context, topic string) (uint64, time.Time, error) {
	req := &gmail.WatchRequest{
		TopicName:           topic,
		LabelIds:            []string{inboxLabel},
		LabelFilterBehavior: "include",
	}

	var resp *gmail.WatchResponse
	err := p.execute("Watch", func() error {
		var apiErr error
		resp, apiErr = p.svc.Users.Watch(userID, req).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return 0, time.Time{}, wrapError(err, "failed to setup watch")
	}
	return resp.HistoryId, time.UnixMilli(resp.Expiration).UTC(), nil
}

func (p *GmailProvider) modifyLabels(ctx context.Context, messageID string, add, remove []string) error {
	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	err := p.execute("Messages.Modify", func() error {
		_, apiErr := p.svc.Users.Messages.Modify(userID, messageID, req).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return wrapError(err, "failed to modify labels")
	}
	return nil
}

// execute wraps an API call with the circuit breaker. Client errors pass
// through without counting against the breaker.
func (p *GmailProvider) execute(operation string, fn func() error) error {
	if p.cb == nil {
		return fn()
	}

	_, err := p.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 400, 401, 403, 404, 409:
					return nil, &nonCircuitError{err: err}
				}
			}
			if apperr.IsAppError(err) {
				// token refresh failures are not Gmail outages
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	if err != nil {
		logger.WithError(err).Warn("[GmailProvider] %s failed: breaker=%s", operation, p.cb.State().String())
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

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// wrapError maps Gmail failures onto provider error codes. Errors that already
// carry an application kind, such as a revoked refresh token, are kept.
func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if apperr.IsAppError(err) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out.NewProviderError(providerName, out.ProviderErrServer, "circuit open", err, true)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError(providerName, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if isRateLimit(apiErr) {
				return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(providerName, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(providerName, out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 400:
			return out.NewProviderError(providerName, out.ProviderErrInvalidInput, "Bad request", err, false)
		}
		if apiErr.Code >= 500 {
			return out.NewProviderError(providerName, out.ProviderErrServer, "Server error", err, true)
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return out.NewProviderError(providerName, out.ProviderErrNetwork, "Network error", err, true)
	}

	return out.NewProviderError(providerName, out.ProviderErrServer, defaultMsg, err, true)
}

func isRateLimit(apiErr *googleapi.Error) bool {
	if strings.Contains(apiErr.Message, "Rate Limit") {
		return true
	}
	for _, item := range apiErr.Errors {
		if strings.Contains(item.Reason, "rateLimitExceeded") || strings.Contains(item.Reason, "userRateLimitExceeded") {
			return true
		}
	}
	return false
}
