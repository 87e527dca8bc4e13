package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

// TokenSource returns a source that refreshes the account's token when it
// expires and stores each new access token. Concurrent refreshes of the same
// account are last-write-wins.
func (s *Service) TokenSource(ctx context.Context, account *domain.Account) oauth2.TokenSource {
	initial := account.OAuthToken()
	return &persistingSource{
		base:      s.config.TokenSource(ctx, initial),
		accounts:  s.accounts,
		ctx:       context.WithoutCancel(ctx),
		accountID: account.ID,
		last:      initial.AccessToken,
	}
}

type persistingSource struct {
	base      oauth2.TokenSource
	accounts  out.AccountRepository
	ctx       context.Context
	accountID int64

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, p.refreshError(err)
	}

	p.mu.Lock()
	changed := tok.AccessToken != p.last
	p.last = tok.AccessToken
	p.mu.Unlock()

	if changed {
		if err := p.accounts.UpdateToken(p.ctx, p.accountID, tok); err != nil {
			logger.WithAccount(p.accountID).WithError(err).Warn("[TokenSource] failed to persist refreshed token")
		} else {
			logger.WithAccount(p.accountID).Debug("[TokenSource] token refreshed")
		}
	}
	return tok, nil
}

// refreshError deactivates accounts whose grant was revoked. Other failures
// are treated as transient.
func (p *persistingSource) refreshError(err error) error {
	if !isRevoked(err) {
		return apperr.TransientProvider("google oauth", err)
	}

	log := logger.WithAccount(p.accountID).WithError(err)
	log.Warn("[TokenSource] refresh token revoked, deactivating account")
	if serr := p.accounts.SetActive(p.ctx, p.accountID, false); serr != nil {
		log.Error("[TokenSource] failed to deactivate account: %v", serr)
	}
	return apperr.AuthExpired("gmail", err)
}

func isRevoked(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode != "" {
		return re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client"
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "Token has been expired or revoked")
}

func isNotFound(err error) bool {
	return err != nil && (apperr.IsSkip(err) || errors.Is(err, out.ErrNotFound))
}
