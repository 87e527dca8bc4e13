package in

import (
	"context"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

// TriageService runs the per-message pipeline and mailbox synchronization.
type TriageService interface {
	// Process triages one message. Redelivery of a handled message is a no-op.
	Process(ctx context.Context, accountID int64, messageID string) error
	// Sync polls the mailbox, enqueues new messages and advances the cursor.
	Sync(ctx context.Context, accountID int64) (*SyncResult, error)

	// Feedback (처리 기록 중 유일하게 변경 가능한 필드)
	SetFeedback(ctx context.Context, accountID int64, messageID, feedback string) error
	ListProcessed(ctx context.Context, accountID int64, limit, offset int) ([]*domain.ProcessedMessage, error)
}

type SyncResult struct {
	AccountID int64  `json:"account_id"`
	Enqueued  int    `json:"enqueued"`
	Cursor    uint64 `json:"cursor"`
	Advanced  bool   `json:"advanced"`
	Baseline  bool   `json:"baseline"`
}
