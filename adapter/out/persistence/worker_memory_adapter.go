package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// MemoryAdapter stores memories of every tier in one table keyed by type.
type MemoryAdapter struct {
	db *sqlx.DB
}

var _ out.MemoryRepository = (*MemoryAdapter)(nil)

func NewMemoryAdapter(db *sqlx.DB) *MemoryAdapter {
	return &MemoryAdapter{db: db}
}

type memoryRow struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	Type      string    `db:"type"`
	Content   string    `db:"content"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	CreatedAt time.Time `db:"created_at"`
}

const memoryColumns = `id, account_id, type, content, start_date, end_date, created_at`

func (r *memoryRow) toEntity() *domain.Memory {
	return &domain.Memory{
		ID:        r.ID,
		AccountID: r.AccountID,
		Tier:      domain.Tier(r.Type),
		Content:   r.Content,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (a *MemoryAdapter) Create(ctx context.Context, m *domain.Memory) error {
	query := `
		INSERT INTO memories (account_id, type, content, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := a.db.QueryRowxContext(ctx, query, m.AccountID, string(m.Tier), m.Content, m.StartDate, m.EndDate, m.CreatedAt).
		Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

func (a *MemoryAdapter) Latest(ctx context.Context, accountID int64, tier domain.Tier) (*domain.Memory, error) {
	var row memoryRow
	query := `SELECT ` + memoryColumns + ` FROM memories
		WHERE account_id = $1 AND type = $2
		ORDER BY created_at DESC, id DESC LIMIT 1`
	if err := a.db.GetContext(ctx, &row, query, accountID, string(tier)); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest memory: %w", err)
	}
	return row.toEntity(), nil
}

func (a *MemoryAdapter) ListWithin(ctx context.Context, accountID int64, tier domain.Tier, start, end time.Time) ([]*domain.Memory, error) {
	var rows []memoryRow
	query := `SELECT ` + memoryColumns + ` FROM memories
		WHERE account_id = $1 AND type = $2 AND start_date >= $3 AND end_date <= $4
		ORDER BY created_at ASC, id ASC`
	if err := a.db.SelectContext(ctx, &rows, query, accountID, string(tier), start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return toMemories(rows), nil
}

func (a *MemoryAdapter) Recent(ctx context.Context, accountID int64, tier domain.Tier, limit int) ([]*domain.Memory, error) {
	var rows []memoryRow
	query := `SELECT ` + memoryColumns + ` FROM memories
		WHERE account_id = $1 AND type = $2
		ORDER BY created_at DESC, id DESC LIMIT $3`
	if err := a.db.SelectContext(ctx, &rows, query, accountID, string(tier), limit); err != nil {
		return nil, fmt.Errorf("failed to list recent memories: %w", err)
	}
	return toMemories(rows), nil
}

func toMemories(rows []memoryRow) []*domain.Memory {
	memories := make([]*domain.Memory, len(rows))
	for i := range rows {
		memories[i] = rows[i].toEntity()
	}
	return memories
}
