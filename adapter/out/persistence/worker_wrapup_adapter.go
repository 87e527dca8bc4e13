package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// WrapupAdapter keeps wrapup reports in Postgres when MongoDB is not configured.
type WrapupAdapter struct {
	db *sqlx.DB
}

var _ out.WrapupRepository = (*WrapupAdapter)(nil)

func NewWrapupAdapter(db *sqlx.DB) *WrapupAdapter {
	return &WrapupAdapter{db: db}
}

type wrapupRow struct {
	ID          string    `db:"id"`
	AccountID   int64     `db:"account_id"`
	ReportType  string    `db:"report_type"`
	EmailCount  int       `db:"email_count"`
	Content     string    `db:"content"`
	WindowStart time.Time `db:"window_start"`
	WindowEnd   time.Time `db:"window_end"`
	GeneratedAt time.Time `db:"generated_at"`
}

func (a *WrapupAdapter) Create(ctx context.Context, r *domain.WrapupReport) error {
	query := `
		INSERT INTO wrapup_reports (id, account_id, report_type, email_count, content, window_start, window_end, generated_at)
		VALUES (:id, :account_id, :report_type, :email_count, :content, :window_start, :window_end, :generated_at)`
	row := wrapupRow{
		ID:          r.ID,
		AccountID:   r.AccountID,
		ReportType:  string(r.Kind),
		EmailCount:  r.EmailCount,
		Content:     r.Content,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		GeneratedAt: r.GeneratedAt,
	}
	if _, err := a.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create wrapup report: %w", err)
	}
	return nil
}

func (a *WrapupAdapter) ListRecent(ctx context.Context, accountID int64, limit int) ([]*domain.WrapupReport, error) {
	var rows []wrapupRow
	query := `SELECT id, account_id, report_type, email_count, content, window_start, window_end, generated_at
		FROM wrapup_reports WHERE account_id = $1 ORDER BY generated_at DESC LIMIT $2`
	if err := a.db.SelectContext(ctx, &rows, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list wrapup reports: %w", err)
	}

	reports := make([]*domain.WrapupReport, len(rows))
	for i, r := range rows {
		reports[i] = &domain.WrapupReport{
			ID:          r.ID,
			AccountID:   r.AccountID,
			Kind:        domain.WrapupKind(r.ReportType),
			EmailCount:  r.EmailCount,
			Content:     r.Content,
			WindowStart: r.WindowStart.UTC(),
			WindowEnd:   r.WindowEnd.UTC(),
			GeneratedAt: r.GeneratedAt.UTC(),
		}
	}
	return reports, nil
}
