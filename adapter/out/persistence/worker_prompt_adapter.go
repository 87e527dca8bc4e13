package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

type PromptAdapter struct {
	db *sqlx.DB
}

var _ out.PromptRepository = (*PromptAdapter)(nil)

func NewPromptAdapter(db *sqlx.DB) *PromptAdapter {
	return &PromptAdapter{db: db}
}

type promptRow struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	Type      string    `db:"type"`
	Content   string    `db:"content"`
	IsActive  bool      `db:"is_active"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GetActive returns nil, nil when the account has no active override.
func (a *PromptAdapter) GetActive(ctx context.Context, accountID int64, promptType domain.PromptType) (*domain.PromptOverride, error) {
	var row promptRow
	query := `SELECT id, account_id, type, content, is_active, updated_at
		FROM prompt_overrides
		WHERE account_id = $1 AND type = $2 AND is_active
		ORDER BY updated_at DESC LIMIT 1`
	if err := a.db.GetContext(ctx, &row, query, accountID, string(promptType)); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prompt override: %w", err)
	}

	return &domain.PromptOverride{
		ID:        row.ID,
		AccountID: row.AccountID,
		Type:      domain.PromptType(row.Type),
		Content:   row.Content,
		IsActive:  row.IsActive,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
