package domain

import "time"

// PromptType names the stage a prompt override applies to.
type PromptType string

const (
	PromptEmailAnalyze   PromptType = "email_analyze"
	PromptEmailActions   PromptType = "email_actions"
	PromptDailyReview    PromptType = "daily_review"
	PromptWeeklySummary  PromptType = "weekly_summary"
	PromptMonthlySummary PromptType = "monthly_summary"
	PromptYearlySummary  PromptType = "yearly_summary"
	PromptWrapupReport   PromptType = "wrapup_report"
)

func (p PromptType) Valid() bool {
	switch p {
	case PromptEmailAnalyze, PromptEmailActions, PromptDailyReview, PromptWeeklySummary,
		PromptMonthlySummary, PromptYearlySummary, PromptWrapupReport:
		return true
	}
	return false
}

// PromptOverride replaces a stage's built-in instructions for one account.
type PromptOverride struct {
	ID        int64      `json:"id"`
	AccountID int64      `json:"account_id"`
	Type      PromptType `json:"type"`
	Content   string     `json:"content"`
	IsActive  bool       `json:"is_active"`
	UpdatedAt time.Time  `json:"updated_at"`
}
