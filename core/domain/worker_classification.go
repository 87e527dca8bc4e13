package domain

import (
	"errors"
	"strings"
	"unicode"
)

const (
	MaxKeywords      = 5
	MaxSummaryLength = 100
	RecentSlugLimit  = 5
)

// Analysis is the classification stage output.
type Analysis struct {
	Slug     string   `json:"slug"`
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
}

// Normalize cleans model output in place and reports what cannot be repaired.
func (a *Analysis) Normalize() error {
	a.Slug = NormalizeSlug(a.Slug)
	if a.Slug == "" {
		return errors.New("slug is empty")
	}

	keywords := make([]string, 0, len(a.Keywords))
	for _, k := range a.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return errors.New("keywords are empty")
	}
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}
	a.Keywords = keywords

	a.Summary = strings.TrimSpace(strings.ReplaceAll(a.Summary, "\n", " "))
	if a.Summary == "" {
		return errors.New("summary is empty")
	}
	if r := []rune(a.Summary); len(r) > MaxSummaryLength {
		a.Summary = string(r[:MaxSummaryLength])
	}
	return nil
}

// NormalizeSlug lowercases s and collapses every run of other characters to "_".
func NormalizeSlug(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// Decision is the decision stage output.
type Decision struct {
	Labels      []string `json:"labels"`
	BypassInbox bool     `json:"bypass_inbox"`
	Reasoning   string   `json:"reasoning"`
}

// Normalize trims the decision and rejects one without reasoning.
func (d *Decision) Normalize() error {
	d.Reasoning = strings.TrimSpace(d.Reasoning)
	if d.Reasoning == "" {
		return errors.New("reasoning is empty")
	}
	labels := make([]string, 0, len(d.Labels))
	for _, l := range d.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	d.Labels = labels
	return nil
}
