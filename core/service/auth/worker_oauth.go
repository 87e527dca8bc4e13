package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Service connects Gmail accounts and hands out self-refreshing credentials.
type Service struct {
	config    *oauth2.Config
	accounts  out.AccountRepository
	providers out.MailProviderFactory
	userInfo  string
	now       func() time.Time
}

var _ in.AccountService = (*Service)(nil)

func NewService(cfg OAuthConfig, accounts out.AccountRepository) *Service {
	return &Service{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				gmail.GmailModifyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
		accounts: accounts,
		userInfo: userInfoURL,
		now:      time.Now,
	}
}

// SetProviderFactory wires the provider used for watch renewal. The factory
// itself depends on TokenSource, hence the setter.
func (s *Service) SetProviderFactory(providers out.MailProviderFactory) {
	s.providers = providers
}

func (s *Service) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect exchanges code and stores the account. A reconnect keeps the
// cursor and reactivates the account.
func (s *Service) Connect(ctx context.Context, code string) (*domain.Account, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.ExternalError("google oauth", fmt.Errorf("exchange code: %w", err))
	}

	email, err := s.lookupEmail(ctx, token)
	if err != nil {
		return nil, apperr.ExternalError("google userinfo", err)
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !isNotFound(err) {
		return nil, apperr.DatabaseError("get account by email", err)
	}
	if account == nil {
		account = &domain.Account{Email: email, CreatedAt: s.now()}
	}

	account.AccessToken = token.AccessToken
	// Google omits the refresh token on re-consent unless prompted
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	account.TokenExpiry = token.Expiry
	account.IsActive = true
	account.UpdatedAt = s.now()

	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, apperr.DatabaseError("upsert account", err)
	}

	logger.WithAccount(account.ID).Info("[AuthService.Connect] connected %s", email)
	return account, nil
}

func (s *Service) lookupEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	resp, err := s.config.Client(ctx, token).Get(s.userInfo)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo returned no email")
	}
	return strings.ToLower(info.Email), nil
}

// RenewWatch re-registers the Pub/Sub watch. When the account has no cursor
// yet the returned history id becomes its baseline.
func (s *Service) RenewWatch(ctx context.Context, accountID int64, topic string) error {
	if s.providers == nil {
		return apperr.ConfigError("mail provider factory not configured")
	}
	log := logger.WithAccount(accountID)

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return apperr.NotFound(fmt.Sprintf("account %d", accountID))
		}
		return apperr.DatabaseError("get account", err)
	}

	provider, err := s.providers.ForAccount(ctx, account)
	if err != nil {
		return err
	}

	historyID, expiration, err := provider.Watch(ctx, topic)
	if err != nil {
		return err
	}

	if account.LastHistoryID == nil && historyID > 0 {
		if _, err := s.accounts.AdvanceCursor(ctx, accountID, historyID, s.now()); err != nil {
			return apperr.DatabaseError("store baseline cursor", err)
		}
		log.Info("[AuthService.RenewWatch] baseline cursor %d", historyID)
	}

	log.Info("[AuthService.RenewWatch] watch active until %s", expiration.Format(time.RFC3339))
	return nil
}
