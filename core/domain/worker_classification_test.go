package domain

import (
	"strings"
	"testing"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"invoice_due", "invoice_due"},
		{"Invoice-Due", "invoice_due"},
		{"  marketing  newsletter ", "marketing_newsletter"},
		{"__meeting__request__", "meeting_request"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := NormalizeSlug(tt.in); got != tt.want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnalysisNormalize(t *testing.T) {
	a := Analysis{
		Slug:     "Invoice Due",
		Keywords: []string{"invoice", " ", "acme", "billing", "due", "payment", "overflow"},
		Summary:  strings.Repeat("x", 150),
	}
	if err := a.Normalize(); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if a.Slug != "invoice_due" {
		t.Errorf("Slug = %q", a.Slug)
	}
	if len(a.Keywords) != MaxKeywords {
		t.Errorf("Keywords = %v", a.Keywords)
	}
	if len(a.Summary) != MaxSummaryLength {
		t.Errorf("Summary length = %d", len(a.Summary))
	}

	for _, bad := range []Analysis{
		{Slug: "", Keywords: []string{"a"}, Summary: "s"},
		{Slug: "x", Keywords: nil, Summary: "s"},
		{Slug: "x", Keywords: []string{"a"}, Summary: "  "},
	} {
		if err := bad.Normalize(); err == nil {
			t.Errorf("Normalize(%+v) expected error", bad)
		}
	}
}

func TestDecisionNormalize(t *testing.T) {
	d := Decision{Labels: []string{" Finance ", ""}, Reasoning: " bill "}
	if err := d.Normalize(); err != nil {
		t.Fatal(err)
	}
	if len(d.Labels) != 1 || d.Labels[0] != "Finance" || d.Reasoning != "bill" {
		t.Errorf("got %+v", d)
	}

	empty := Decision{Reasoning: "   "}
	if err := empty.Normalize(); err == nil {
		t.Error("empty reasoning must be rejected")
	}
}

func TestTruncateBody(t *testing.T) {
	short := "Hello world"
	if got := TruncateBody(short); got != short {
		t.Errorf("TruncateBody(short) = %q", got)
	}
	long := strings.Repeat("a", 2500)
	got := TruncateBody(long)
	if len(got) != 2003 || !strings.HasSuffix(got, "...") {
		t.Errorf("TruncateBody(long) length = %d", len(got))
	}
}
