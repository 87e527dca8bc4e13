// Package display renders CLI listings of memories, wrapups and triage runs.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	tierStyles = map[domain.Tier]lipgloss.Style{
		domain.TierDaily:   lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb")),
		domain.TierWeekly:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7c3aed")),
		domain.TierMonthly: lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706")),
		domain.TierYearly:  lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626")),
	}

	body = lipgloss.NewStyle().PaddingLeft(2)
)

// Printer writes styled output to w.
type Printer struct {
	w     io.Writer
	width int
}

func NewPrinter(w io.Writer, width int) *Printer {
	if width <= 0 {
		width = 100
	}
	return &Printer{w: w, width: width}
}

// SuccessMsg prints a green checkmark + message.
func (p *Printer) SuccessMsg(format string, args ...any) {
	fmt.Fprintln(p.w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X + message.
func (p *Printer) ErrorMsg(format string, args ...any) {
	fmt.Fprintln(p.w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

func (p *Printer) Header(title string) {
	fmt.Fprintln(p.w, Bold.Render(title))
}

// TierLabel returns a fixed-width colored tier name.
func TierLabel(t domain.Tier) string {
	label := fmt.Sprintf("%-7s", strings.ToUpper(string(t)))
	if s, ok := tierStyles[t]; ok {
		return s.Render(label)
	}
	return label
}

func (p *Printer) Memories(ms []*domain.Memory) {
	if len(ms) == 0 {
		fmt.Fprintln(p.w, Muted.Render("no memories yet"))
		return
	}
	for _, m := range ms {
		span := fmt.Sprintf("%s → %s", m.StartDate.Format("2006-01-02 15:04"), m.EndDate.Format("2006-01-02 15:04"))
		fmt.Fprintf(p.w, "%s %s %s\n", TierLabel(m.Tier), Bold.Render(span), Dim.Render(TimeAgo(m.CreatedAt)))
		fmt.Fprintln(p.w, body.Width(p.width).Render(m.Content))
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) Wrapups(rs []*domain.WrapupReport) {
	if len(rs) == 0 {
		fmt.Fprintln(p.w, Muted.Render("no wrapup reports yet"))
		return
	}
	for _, r := range rs {
		title := fmt.Sprintf("%s wrapup, %d emails", r.Kind, r.EmailCount)
		fmt.Fprintf(p.w, "%s %s\n", Bold.Render(title), Dim.Render(r.GeneratedAt.Format("Mon Jan 2 15:04")))
		fmt.Fprintln(p.w, body.Width(p.width).Render(r.Content))
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) Processed(msgs []*domain.ProcessedMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(p.w, Muted.Render("nothing processed yet"))
		return
	}
	for _, m := range msgs {
		marker := Dim.Render("·")
		if m.BypassedInbox {
			marker = Muted.Render("⇣")
		}
		fmt.Fprintf(p.w, "%s %-28s %s %s\n",
			marker,
			Truncate(m.FromAddress, 28),
			Bold.Render(Truncate(m.Subject, 50)),
			Dim.Render(TimeAgo(m.ProcessedAt)))
		fmt.Fprintf(p.w, "  %s %s\n", Muted.Render(m.Slug), strings.Join(m.LabelsApplied, ", "))
	}
}

// TimeAgo formats t relative to now.
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens s to maxLen runes, adding an ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
