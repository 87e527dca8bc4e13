package in

import (
	"context"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

type MemoryService interface {
	// BuildThrough builds every tier from daily up to tier, in order. Skipped
	// tiers contribute nothing to the result.
	BuildThrough(ctx context.Context, accountID int64, tier domain.Tier, now time.Time) ([]*domain.Memory, error)
	// ContextFor renders the memory context fed to the decision stage.
	ContextFor(ctx context.Context, accountID int64) (string, error)
	List(ctx context.Context, accountID int64, tier domain.Tier, limit int) ([]*domain.Memory, error)
}
