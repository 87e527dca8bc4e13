package in

import (
	"context"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

type WrapupService interface {
	// Generate returns nil without error when the window holds no mail.
	Generate(ctx context.Context, accountID int64, kind domain.WrapupKind, now time.Time) (*domain.WrapupReport, error)
	ListRecent(ctx context.Context, accountID int64, limit int) ([]*domain.WrapupReport, error)
}
