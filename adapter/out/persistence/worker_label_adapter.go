package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// LabelAdapter reads the per-account label catalog.
type LabelAdapter struct {
	db *sqlx.DB
}

var _ out.LabelRepository = (*LabelAdapter)(nil)

func NewLabelAdapter(db *sqlx.DB) *LabelAdapter {
	return &LabelAdapter{db: db}
}

type labelRow struct {
	ID          int64          `db:"id"`
	AccountID   int64          `db:"account_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Reasons     pq.StringArray `db:"reasons"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *labelRow) toEntity() *domain.Label {
	return &domain.Label{
		ID:          r.ID,
		AccountID:   r.AccountID,
		Name:        r.Name,
		Description: r.Description,
		Reasons:     []string(r.Reasons),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ListByAccount returns the catalog in name order so prompts are stable.
func (a *LabelAdapter) ListByAccount(ctx context.Context, accountID int64) (domain.LabelCatalog, error) {
	var rows []labelRow
	query := `SELECT id, account_id, name, description, reasons, created_at, updated_at
		FROM labels WHERE account_id = $1 ORDER BY name ASC`
	if err := a.db.SelectContext(ctx, &rows, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}

	catalog := make(domain.LabelCatalog, len(rows))
	for i := range rows {
		catalog[i] = rows[i].toEntity()
	}
	return catalog, nil
}
