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

// ProcessedMessageAdapter implements out.ProcessedMessageRepository.
type ProcessedMessageAdapter struct {
	db *sqlx.DB
}

var _ out.ProcessedMessageRepository = (*ProcessedMessageAdapter)(nil)

func NewProcessedMessageAdapter(db *sqlx.DB) *ProcessedMessageAdapter {
	return &ProcessedMessageAdapter{db: db}
}

type processedMessageRow struct {
	AccountID     int64          `db:"account_id"`
	MessageID     string         `db:"message_id"`
	FromAddress   string         `db:"from_address"`
	Subject       string         `db:"subject"`
	Slug          string         `db:"slug"`
	Keywords      pq.StringArray `db:"keywords"`
	Summary       string         `db:"summary"`
	LabelsApplied pq.StringArray `db:"labels_applied"`
	BypassedInbox bool           `db:"bypassed_inbox"`
	Reasoning     string         `db:"reasoning"`
	HumanFeedback string         `db:"human_feedback"`
	ProcessedAt   time.Time      `db:"processed_at"`
}

const processedMessageColumns = `account_id, message_id, from_address, subject, slug, keywords, summary,
	labels_applied, bypassed_inbox, reasoning, human_feedback, processed_at`

func (r *processedMessageRow) toEntity() *domain.ProcessedMessage {
	return &domain.ProcessedMessage{
		AccountID:     r.AccountID,
		MessageID:     r.MessageID,
		FromAddress:   r.FromAddress,
		Subject:       r.Subject,
		Slug:          r.Slug,
		Keywords:      []string(r.Keywords),
		Summary:       r.Summary,
		LabelsApplied: []string(r.LabelsApplied),
		BypassedInbox: r.BypassedInbox,
		Reasoning:     r.Reasoning,
		HumanFeedback: r.HumanFeedback,
		ProcessedAt:   r.ProcessedAt,
	}
}

func toProcessedMessageRow(m *domain.ProcessedMessage) *processedMessageRow {
	keywords := m.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	labels := m.LabelsApplied
	if labels == nil {
		labels = []string{}
	}
	return &processedMessageRow{
		AccountID:     m.AccountID,
		MessageID:     m.MessageID,
		FromAddress:   m.FromAddress,
		Subject:       m.Subject,
		Slug:          m.Slug,
		Keywords:      pq.StringArray(keywords),
		Summary:       m.Summary,
		LabelsApplied: pq.StringArray(labels),
		BypassedInbox: m.BypassedInbox,
		Reasoning:     m.Reasoning,
		HumanFeedback: m.HumanFeedback,
		ProcessedAt:   m.ProcessedAt.UTC(),
	}
}

func (a *ProcessedMessageAdapter) Exists(ctx context.Context, accountID int64, messageID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM processed_messages WHERE account_id = $1 AND message_id = $2)`
	if err := a.db.GetContext(ctx, &exists, query, accountID, messageID); err != nil {
		return false, fmt.Errorf("failed to check processed message: %w", err)
	}
	return exists, nil
}

// Create inserts the record. The primary key on (account_id, message_id)
// turns a racing second insert into ErrDuplicate.
func (a *ProcessedMessageAdapter) Create(ctx context.Context, m *domain.ProcessedMessage) error {
	query := `
		INSERT INTO processed_messages (` + processedMessageColumns + `)
		VALUES (:account_id, :message_id, :from_address, :subject, :slug, :keywords, :summary,
			:labels_applied, :bypassed_inbox, :reasoning, :human_feedback, :processed_at)`

	if _, err := a.db.NamedExecContext(ctx, query, toProcessedMessageRow(m)); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create processed message: %w", err)
	}
	return nil
}

func (a *ProcessedMessageAdapter) Get(ctx context.Context, accountID int64, messageID string) (*domain.ProcessedMessage, error) {
	var row processedMessageRow
	query := `SELECT ` + processedMessageColumns + ` FROM processed_messages WHERE account_id = $1 AND message_id = $2`
	if err := a.db.GetContext(ctx, &row, query, accountID, messageID); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get processed message: %w", err)
	}
	return row.toEntity(), nil
}

func (a *ProcessedMessageAdapter) ListBetween(ctx context.Context, accountID int64, start, end time.Time) ([]*domain.ProcessedMessage, error) {
	var rows []processedMessageRow
	query := `SELECT ` + processedMessageColumns + ` FROM processed_messages
		WHERE account_id = $1 AND processed_at >= $2 AND processed_at < $3
		ORDER BY processed_at ASC`
	if err := a.db.SelectContext(ctx, &rows, query, accountID, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list processed messages: %w", err)
	}
	return toProcessedMessages(rows), nil
}

func (a *ProcessedMessageAdapter) ListRecent(ctx context.Context, accountID int64, limit, offset int) ([]*domain.ProcessedMessage, error) {
	var rows []processedMessageRow
	query := `SELECT ` + processedMessageColumns + ` FROM processed_messages
		WHERE account_id = $1 ORDER BY processed_at DESC LIMIT $2 OFFSET $3`
	if err := a.db.SelectContext(ctx, &rows, query, accountID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return toProcessedMessages(rows), nil
}

// UpdateFeedback changes the only mutable column of a processed record.
func (a *ProcessedMessageAdapter) UpdateFeedback(ctx context.Context, accountID int64, messageID, feedback string) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE processed_messages SET human_feedback = $3 WHERE account_id = $1 AND message_id = $2`,
		accountID, messageID, feedback)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	return expectRow(res)
}

func toProcessedMessages(rows []processedMessageRow) []*domain.ProcessedMessage {
	msgs := make([]*domain.ProcessedMessage, len(rows))
	for i := range rows {
		msgs[i] = rows[i].toEntity()
	}
	return msgs
}
