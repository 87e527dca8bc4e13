package out

import (
	"context"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

// JobPublisher puts work on the durable queue.
type JobPublisher interface {
	EnqueueTriage(ctx context.Context, accountID int64, messageIDs ...string) error
	PublishPoll(ctx context.Context, accountID int64, historyID uint64) error
	PublishMemoryBuild(ctx context.Context, accountID int64, tier domain.Tier) error
	PublishWrapup(ctx context.Context, accountID int64, kind domain.WrapupKind) error
}
