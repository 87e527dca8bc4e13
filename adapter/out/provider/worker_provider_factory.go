package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/httputil"
)

// TokenSourcer hands out refreshing credentials for an account.
type TokenSourcer interface {
	TokenSource(ctx context.Context, account *domain.Account) oauth2.TokenSource
}

// GmailFactory opens Gmail sessions that share one circuit breaker.
type GmailFactory struct {
	tokens TokenSourcer
	cb     *gobreaker.CircuitBreaker
	cfg    httputil.ClientConfig
	base   http.RoundTripper
	opts   []option.ClientOption
}

var _ out.MailProviderFactory = (*GmailFactory)(nil)

// NewGmailFactory creates a factory. Extra client options are appended to the
// token source, which lets tests point the client at a local endpoint.
func NewGmailFactory(tokens TokenSourcer, opts ...option.ClientOption) *GmailFactory {
	cfg := httputil.GmailConfig()
	return &GmailFactory{
		tokens: tokens,
		cb:     NewCircuitBreaker(),
		cfg:    cfg,
		base:   httputil.NewTransport(cfg),
		opts:   opts,
	}
}

func (f *GmailFactory) ForAccount(ctx context.Context, account *domain.Account) (out.MailProvider, error) {
	if account == nil {
		return nil, fmt.Errorf("gmail session: nil account")
	}

	// token refreshes and API calls share the pooled transport
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: f.base, Timeout: f.cfg.ResponseTimeout})
	client := &http.Client{
		Transport: &oauth2.Transport{Source: f.tokens.TokenSource(ctx, account), Base: f.base},
		Timeout:   f.cfg.ResponseTimeout,
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, f.opts...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return newGmailProvider(svc, f.cb), nil
}

// BreakerState reports the shared breaker state for health output.
func (f *GmailFactory) BreakerState() string {
	return f.cb.State().String()
}
