package domain

import (
	"fmt"
	"time"
)

// Tier is a memory granularity.
type Tier string

const (
	TierDaily   Tier = "daily"
	TierWeekly  Tier = "weekly"
	TierMonthly Tier = "monthly"
	TierYearly  Tier = "yearly"
)

// Tiers lists every tier from finest to coarsest. Builds run in this order.
var Tiers = []Tier{TierDaily, TierWeekly, TierMonthly, TierYearly}

func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierDaily, TierWeekly, TierMonthly, TierYearly:
		return t, nil
	}
	return "", fmt.Errorf("unknown memory tier %q", s)
}

// Lower returns the tier a consolidation reads from. Daily has none.
func (t Tier) Lower() (Tier, bool) {
	switch t {
	case TierWeekly:
		return TierDaily, true
	case TierMonthly:
		return TierWeekly, true
	case TierYearly:
		return TierMonthly, true
	}
	return "", false
}

func (t Tier) PromptType() PromptType {
	switch t {
	case TierWeekly:
		return PromptWeeklySummary
	case TierMonthly:
		return PromptMonthlySummary
	case TierYearly:
		return PromptYearlySummary
	}
	return PromptDailyReview
}

// Add moves ts by n tier units.
func (t Tier) Add(ts time.Time, n int) time.Time {
	switch t {
	case TierWeekly:
		return ts.AddDate(0, 0, 7*n)
	case TierMonthly:
		return ts.AddDate(0, n, 0)
	case TierYearly:
		return ts.AddDate(n, 0, 0)
	}
	return ts.AddDate(0, 0, n)
}

// Boundary normalizes now to the start of its tier period in loc: midnight,
// Monday midnight, the first of the month or January 1.
func (t Tier) Boundary(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	switch t {
	case TierWeekly:
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case TierMonthly:
		return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, loc)
	case TierYearly:
		return time.Date(n.Year(), time.January, 1, 0, 0, 0, 0, loc)
	}
	return midnight
}

// ContextLimit is how many recent instances of the tier feed the decision stage.
func (t Tier) ContextLimit() int {
	if t == TierDaily {
		return 7
	}
	return 1
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Empty() bool {
	return !w.Start.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// NextWindow computes the window of the next instance of tier. It ends at
// the current tier boundary and begins where prior ended, or one tier unit
// earlier when there is no prior instance. The result is empty when prior
// already covers the current period.
func NextWindow(tier Tier, now time.Time, loc *time.Location, prior *Memory) Window {
	end := tier.Boundary(now, loc)
	start := tier.Add(end, -1)
	if prior != nil {
		start = prior.EndDate.In(end.Location())
	}
	return Window{Start: start, End: end}
}

// Memory is one summarized period of triage experience.
type Memory struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Tier      Tier      `json:"type"`
	Content   string    `json:"content"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Memory) Window() Window {
	return Window{Start: m.StartDate, End: m.EndDate}
}
