package in

import (
	"context"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

// AccountService connects mailboxes and keeps their push subscriptions alive.
type AccountService interface {
	AuthURL(state string) string
	// Connect exchanges an OAuth code and stores or updates the account.
	Connect(ctx context.Context, code string) (*domain.Account, error)
	RenewWatch(ctx context.Context, accountID int64, topic string) error
}
