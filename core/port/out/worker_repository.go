package out

import (
	"context"
	"errors"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"golang.org/x/oauth2"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// AccountRepository reads accounts and writes the fields the engine owns.
type AccountRepository interface {
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// ListActive pages active accounts ordered by id, starting after afterID.
	ListActive(ctx context.Context, afterID int64, limit int) ([]*domain.Account, error)
	Upsert(ctx context.Context, account *domain.Account) error
	// AdvanceCursor stores cursor only when it is ahead of the stored one and
	// reports whether it did. last_checked_at is stamped either way.
	AdvanceCursor(ctx context.Context, id int64, cursor uint64, checkedAt time.Time) (bool, error)
	UpdateToken(ctx context.Context, id int64, token *oauth2.Token) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// ProcessedMessageRepository stores triage outcomes. At most one row exists per
// (account, message).
type ProcessedMessageRepository interface {
	Exists(ctx context.Context, accountID int64, messageID string) (bool, error)
	// Create returns ErrDuplicate when the row already exists.
	Create(ctx context.Context, msg *domain.ProcessedMessage) error
	Get(ctx context.Context, accountID int64, messageID string) (*domain.ProcessedMessage, error)
	// ListBetween returns rows with processed_at in [start, end), oldest first.
	ListBetween(ctx context.Context, accountID int64, start, end time.Time) ([]*domain.ProcessedMessage, error)
	ListRecent(ctx context.Context, accountID int64, limit, offset int) ([]*domain.ProcessedMessage, error)
	UpdateFeedback(ctx context.Context, accountID int64, messageID, feedback string) error
}

// SenderHistory remembers which slugs a sender has been classified as.
type SenderHistory interface {
	// RecentSlugs returns distinct slugs for sender, most recent first.
	RecentSlugs(ctx context.Context, accountID int64, sender string, limit int) ([]string, error)
	Record(ctx context.Context, accountID int64, sender, slug string, at time.Time) error
}

type LabelRepository interface {
	ListByAccount(ctx context.Context, accountID int64) (domain.LabelCatalog, error)
}

type PromptRepository interface {
	// GetActive returns nil without error when no override exists.
	GetActive(ctx context.Context, accountID int64, promptType domain.PromptType) (*domain.PromptOverride, error)
}

type MemoryRepository interface {
	Create(ctx context.Context, memory *domain.Memory) error
	// Latest returns the most recently created instance of tier, or nil.
	Latest(ctx context.Context, accountID int64, tier domain.Tier) (*domain.Memory, error)
	// ListWithin returns instances whose window lies inside [start, end),
	// oldest first.
	ListWithin(ctx context.Context, accountID int64, tier domain.Tier, start, end time.Time) ([]*domain.Memory, error)
	// Recent returns up to limit instances, newest first.
	Recent(ctx context.Context, accountID int64, tier domain.Tier, limit int) ([]*domain.Memory, error)
}

type WrapupRepository interface {
	Create(ctx context.Context, report *domain.WrapupReport) error
	ListRecent(ctx context.Context, accountID int64, limit int) ([]*domain.WrapupReport, error)
}
