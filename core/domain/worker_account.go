package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// Account is one connected mailbox.
type Account struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	AccessToken   string     `json:"-"`
	RefreshToken  string     `json:"-"`
	TokenExpiry   time.Time  `json:"token_expiry"`
	IsActive      bool       `json:"is_active"`
	LastHistoryID *uint64    `json:"last_history_id,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OAuthToken returns the stored credential pair.
func (a *Account) OAuthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       a.TokenExpiry,
	}
}

// Cursor returns the stored history id, or 0 when none is known yet.
func (a *Account) Cursor() uint64 {
	if a.LastHistoryID == nil {
		return 0
	}
	return *a.LastHistoryID
}
