package domain

import (
	"fmt"
	"strings"
	"time"
)

// Label is a user-defined category the decision stage may apply.
type Label struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Reasons     []string  `json:"reasons"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LabelCatalog is the ordered set of labels configured for an account.
type LabelCatalog []*Label

// Names returns label names in catalog order.
func (c LabelCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for _, l := range c {
		names = append(names, l.Name)
	}
	return names
}

// Render formats the catalog as prompt lines:
//
//	- "name": description (e.g. reason1, reason2)
func (c LabelCatalog) Render() string {
	lines := make([]string, 0, len(c))
	for _, l := range c {
		line := fmt.Sprintf("- %q", l.Name)
		if l.Description != "" {
			line += ": " + l.Description
		}
		if len(l.Reasons) > 0 {
			line += " (e.g. " + strings.Join(l.Reasons, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Filter keeps names present in the catalog, preserving order and dropping
// duplicates. Matching is exact first, then case-insensitive; kept names use
// the catalog spelling.
func (c LabelCatalog) Filter(names []string) (kept, dropped []string) {
	exact := make(map[string]string, len(c))
	folded := make(map[string]string, len(c))
	for _, l := range c {
		exact[l.Name] = l.Name
		folded[strings.ToLower(l.Name)] = l.Name
	}

	seen := make(map[string]bool)
	for _, n := range names {
		name, ok := exact[n]
		if !ok {
			name, ok = folded[strings.ToLower(strings.TrimSpace(n))]
		}
		if !ok {
			dropped = append(dropped, n)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		kept = append(kept, name)
	}
	return kept, dropped
}
