package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
	"github.com/denwilliams/gmail-triage-assistant/pkg/response"
)

// OAuthStateKey prefixes stored CSRF states.
const OAuthStateKey = "oauth:state:"

// OAuthStateTTL state 유효 시간 (10분)
const OAuthStateTTL = 10 * time.Minute

// StateStore keeps one-shot OAuth states in the shared cache.
type StateStore struct {
	cache out.Cache
}

func NewStateStore(cache out.Cache) *StateStore {
	return &StateStore{cache: cache}
}

// Issue creates and stores a fresh state.
func (s *StateStore) Issue(ctx context.Context) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secure state: %w", err)
	}
	state := hex.EncodeToString(b)
	if err := s.cache.Set(ctx, OAuthStateKey+state, "1", OAuthStateTTL); err != nil {
		return "", err
	}
	return state, nil
}

// Consume reports whether state was issued and not yet used.
func (s *StateStore) Consume(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	key := OAuthStateKey + state
	if _, err := s.cache.Get(ctx, key); err != nil {
		if !errors.Is(err, out.ErrCacheMiss) {
			logger.WithError(err).Warn("oauth state lookup failed")
		}
		return false
	}
	_ = s.cache.Delete(ctx, key)
	return true
}

// OAuthHandler connects Gmail accounts through Google's consent screen.
type OAuthHandler struct {
	accounts in.AccountService
	states   *StateStore
	topic    string
}

// NewOAuthHandler creates the handler. A non-empty topic registers push
// notifications right after a mailbox is connected.
func NewOAuthHandler(accounts in.AccountService, states *StateStore, topic string) *OAuthHandler {
	return &OAuthHandler{accounts: accounts, states: states, topic: topic}
}

func (h *OAuthHandler) Register(app fiber.Router) {
	auth := app.Group("/auth/google")
	auth.Get("/", h.Connect)
	auth.Get("/callback", h.Callback)
}

func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	state, err := h.states.Issue(c.UserContext())
	if err != nil {
		return apperr.InternalWithError(err)
	}
	return c.Redirect(h.accounts.AuthURL(state), fiber.StatusTemporaryRedirect)
}

func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if e := c.Query("error"); e != "" {
		return apperr.BadRequest("authorization denied: " + e)
	}
	code := c.Query("code")
	if code == "" {
		return apperr.InvalidInput("code", "required")
	}
	if !h.states.Consume(c.UserContext(), c.Query("state")) {
		logger.Warn("[OAuth Callback] State validation failed (CSRF protection)")
		return apperr.BadRequest("invalid or expired state")
	}

	account, err := h.accounts.Connect(c.UserContext(), code)
	if err != nil {
		return err
	}
	log := logger.WithAccount(account.ID).WithField("email", account.Email)
	log.Info("[OAuth Callback] account connected")

	if h.topic != "" {
		if err := h.accounts.RenewWatch(c.UserContext(), account.ID, h.topic); err != nil {
			// the daily renewal sweep retries this
			log.WithError(err).Warn("[OAuth Callback] watch registration failed")
		}
	}
	return response.Created(c, account)
}
