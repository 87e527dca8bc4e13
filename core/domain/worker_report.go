package domain

import (
	"fmt"
	"time"
)

// WrapupKind selects one of the two daily digest windows.
type WrapupKind string

const (
	WrapupMorning WrapupKind = "morning"
	WrapupEvening WrapupKind = "evening"
)

func ParseWrapupKind(s string) (WrapupKind, error) {
	switch k := WrapupKind(s); k {
	case WrapupMorning, WrapupEvening:
		return k, nil
	}
	return "", fmt.Errorf("unknown wrapup kind %q", s)
}

// Window returns the digest window ending at now: morning covers yesterday
// 17:00 onward, evening covers today 08:00 onward.
func (k WrapupKind) Window(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	var start time.Time
	switch k {
	case WrapupMorning:
		y := n.AddDate(0, 0, -1)
		start = time.Date(y.Year(), y.Month(), y.Day(), 17, 0, 0, 0, loc)
	default:
		start = time.Date(n.Year(), n.Month(), n.Day(), 8, 0, 0, 0, loc)
	}
	return Window{Start: start, End: n}
}

// Timeframe is the phrase used when asking for the digest.
func (k WrapupKind) Timeframe() string {
	if k == WrapupEvening {
		return "today"
	}
	return "overnight"
}

// WrapupReport is a point-in-time digest of recently processed mail.
type WrapupReport struct {
	ID          string     `json:"id"`
	AccountID   int64      `json:"account_id"`
	Kind        WrapupKind `json:"report_type"`
	EmailCount  int        `json:"email_count"`
	Content     string     `json:"content"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	GeneratedAt time.Time  `json:"generated_at"`
}
