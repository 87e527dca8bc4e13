package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// SenderHistoryAdapter answers sender lookups from processed_messages. It is
// the fallback when no graph database is configured.
type SenderHistoryAdapter struct {
	db *sqlx.DB
}

var _ out.SenderHistory = (*SenderHistoryAdapter)(nil)

func NewSenderHistoryAdapter(db *sqlx.DB) *SenderHistoryAdapter {
	return &SenderHistoryAdapter{db: db}
}

func (a *SenderHistoryAdapter) RecentSlugs(ctx context.Context, accountID int64, sender string, limit int) ([]string, error) {
	var slugs []string
	query := `SELECT slug FROM processed_messages
		WHERE account_id = $1 AND from_address = $2 AND slug <> ''
		GROUP BY slug ORDER BY MAX(processed_at) DESC LIMIT $3`
	if err := a.db.SelectContext(ctx, &slugs, query, accountID, sender, limit); err != nil {
		return nil, fmt.Errorf("failed to list sender slugs: %w", err)
	}
	return slugs, nil
}

// Record is a no-op: the processed record itself is the history.
func (a *SenderHistoryAdapter) Record(context.Context, int64, string, string, time.Time) error {
	return nil
}
