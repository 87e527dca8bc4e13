package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/crypto"
)

// AccountAdapter implements out.AccountRepository. Tokens are sealed with
// the encryptor before they reach the table.
type AccountAdapter struct {
	db  *sqlx.DB
	enc *crypto.Encryptor
}

var _ out.AccountRepository = (*AccountAdapter)(nil)

// NewAccountAdapter creates a new AccountAdapter. enc may be nil, in which
// case tokens are stored as given.
func NewAccountAdapter(db *sqlx.DB, enc *crypto.Encryptor) *AccountAdapter {
	return &AccountAdapter{db: db, enc: enc}
}

type accountRow struct {
	ID            int64         `db:"id"`
	Email         string        `db:"email"`
	AccessToken   string        `db:"access_token"`
	RefreshToken  string        `db:"refresh_token"`
	TokenExpiry   sql.NullTime  `db:"token_expiry"`
	IsActive      bool          `db:"is_active"`
	LastHistoryID sql.NullInt64 `db:"last_history_id"`
	LastCheckedAt sql.NullTime  `db:"last_checked_at"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

const accountColumns = `id, email, access_token, refresh_token, token_expiry, is_active,
	last_history_id, last_checked_at, created_at, updated_at`

func (a *AccountAdapter) toEntity(r *accountRow) (*domain.Account, error) {
	access, err := a.enc.Open(r.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("account %d access token: %w", r.ID, err)
	}
	refresh, err := a.enc.Open(r.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("account %d refresh token: %w", r.ID, err)
	}

	acct := &domain.Account{
		ID:            r.ID,
		Email:         r.Email,
		AccessToken:   access,
		RefreshToken:  refresh,
		IsActive:      r.IsActive,
		LastCheckedAt: nullTime(r.LastCheckedAt),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.TokenExpiry.Valid {
		acct.TokenExpiry = r.TokenExpiry.Time
	}
	if r.LastHistoryID.Valid {
		h := uint64(r.LastHistoryID.Int64)
		acct.LastHistoryID = &h
	}
	return acct, nil
}

func (a *AccountAdapter) seal(token string) (string, error) {
	sealed, err := a.enc.Seal(token)
	if err != nil {
		return "", fmt.Errorf("seal token: %w", err)
	}
	return sealed, nil
}

func (a *AccountAdapter) Get(ctx context.Context, id int64) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a.toEntity(&row)
}

func (a *AccountAdapter) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	if err := a.db.GetContext(ctx, &row, query, email); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return a.toEntity(&row)
}

// ListActive pages active accounts by id.
func (a *AccountAdapter) ListActive(ctx context.Context, afterID int64, limit int) ([]*domain.Account, error) {
	var rows []accountRow
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE is_active AND id > $1 ORDER BY id LIMIT $2`
	if err := a.db.SelectContext(ctx, &rows, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}

	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		acct, err := a.toEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// Upsert inserts by email or refreshes the credentials of an existing row.
// The cursor is never touched here.
func (a *AccountAdapter) Upsert(ctx context.Context, acct *domain.Account) error {
	access, err := a.seal(acct.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := a.seal(acct.RefreshToken)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (email, access_token, refresh_token, token_expiry, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN accounts.refresh_token ELSE EXCLUDED.refresh_token END,
			token_expiry = EXCLUDED.token_expiry,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return a.db.QueryRowxContext(ctx, query, acct.Email, access, refresh, acct.TokenExpiry, acct.IsActive).
		Scan(&acct.ID, &acct.CreatedAt, &acct.UpdatedAt)
}

// AdvanceCursor moves last_history_id forward only. The row lock taken by the
// CTE makes concurrent polls of one account serialize here.
func (a *AccountAdapter) AdvanceCursor(ctx context.Context, id int64, cursor uint64, checkedAt time.Time) (bool, error) {
	query := `
		WITH prev AS (
			SELECT last_history_id FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts SET
			last_history_id = CASE
				WHEN prev.last_history_id IS NULL OR prev.last_history_id < $2 THEN $2
				ELSE prev.last_history_id END,
			last_checked_at = $3,
			updated_at = NOW()
		FROM prev
		WHERE accounts.id = $1
		RETURNING prev.last_history_id IS NULL OR prev.last_history_id < $2`

	var advanced bool
	if err := a.db.QueryRowxContext(ctx, query, id, int64(cursor), checkedAt).Scan(&advanced); err != nil {
		if isNoRows(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("failed to advance cursor: %w", err)
	}
	return advanced, nil
}

// UpdateToken stores a refreshed token. An empty refresh token keeps the old one.
func (a *AccountAdapter) UpdateToken(ctx context.Context, id int64, token *oauth2.Token) error {
	access, err := a.seal(token.AccessToken)
	if err != nil {
		return err
	}
	refresh := ""
	if token.RefreshToken != "" {
		if refresh, err = a.seal(token.RefreshToken); err != nil {
			return err
		}
	}

	query := `
		UPDATE accounts SET
			access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expiry = $4,
			updated_at = NOW()
		WHERE id = $1`
	res, err := a.db.ExecContext(ctx, query, id, access, refresh, token.Expiry)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return expectRow(res)
}

func (a *AccountAdapter) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := a.db.ExecContext(ctx, `UPDATE accounts SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set active: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
