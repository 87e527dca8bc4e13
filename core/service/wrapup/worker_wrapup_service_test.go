package wrapup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

type fakeReports struct {
	rows []*domain.WrapupReport
	err  error
}

func (f *fakeReports) Create(_ context.Context, r *domain.WrapupReport) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, r)
	return nil
}

func (f *fakeReports) ListRecent(_ context.Context, accountID int64, limit int) ([]*domain.WrapupReport, error) {
	var res []*domain.WrapupReport
	for i := len(f.rows) - 1; i >= 0 && len(res) < limit; i-- {
		if f.rows[i].AccountID == accountID {
			res = append(res, f.rows[i])
		}
	}
	return res, nil
}

type fakeMessages struct {
	rows []*domain.ProcessedMessage
	// windows records every ListBetween range
	windows []domain.Window
}

func (f *fakeMessages) Exists(context.Context, int64, string) (bool, error)   { return false, nil }
func (f *fakeMessages) Create(context.Context, *domain.ProcessedMessage) error { return nil }
func (f *fakeMessages) Get(context.Context, int64, string) (*domain.ProcessedMessage, error) {
	return nil, nil
}
func (f *fakeMessages) ListRecent(context.Context, int64, int, int) ([]*domain.ProcessedMessage, error) {
	return nil, nil
}
func (f *fakeMessages) UpdateFeedback(context.Context, int64, string, string) error { return nil }

func (f *fakeMessages) ListBetween(_ context.Context, accountID int64, start, end time.Time) ([]*domain.ProcessedMessage, error) {
	f.windows = append(f.windows, domain.Window{Start: start, End: end})
	var res []*domain.ProcessedMessage
	for _, m := range f.rows {
		if m.AccountID == accountID && !m.ProcessedAt.Before(start) && m.ProcessedAt.Before(end) {
			res = append(res, m)
		}
	}
	return res, nil
}

type fakePrompts struct{ content string }

func (f *fakePrompts) GetActive(_ context.Context, _ int64, t domain.PromptType) (*domain.PromptOverride, error) {
	if f.content == "" || t != domain.PromptWrapupReport {
		return nil, nil
	}
	return &domain.PromptOverride{Type: t, Content: f.content, IsActive: true}, nil
}

type fakeGenerator struct {
	system, user string
	calls        int
	err          error
}

func (f *fakeGenerator) Generate(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	return "digest", f.err
}

func at(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func TestMorningWrapupSkipsEmptyWindow(t *testing.T) {
	reports := &fakeReports{}
	msgs := &fakeMessages{rows: []*domain.ProcessedMessage{
		// before 17:00 yesterday
		{AccountID: 1, Subject: "old", ProcessedAt: at("2025-01-09T16:59:00Z")},
	}}
	gen := &fakeGenerator{}
	svc := NewService(reports, msgs, &fakePrompts{}, gen, time.UTC)

	report, err := svc.Generate(context.Background(), 1, domain.WrapupMorning, at("2025-01-10T08:00:00Z"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if report != nil || len(reports.rows) != 0 {
		t.Fatalf("no report expected, got %+v", report)
	}
	if gen.calls != 0 {
		t.Error("generator should not run for an empty window")
	}
	want := domain.Window{Start: at("2025-01-09T17:00:00Z"), End: at("2025-01-10T08:00:00Z")}
	if got := msgs.windows[0]; !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Errorf("window = %s, want %s", got, want)
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name       string
		kind       domain.WrapupKind
		now        string
		override   string
		wantCount  int
		wantInUser []string
	}{
		{
			name:       "evening from eight",
			kind:       domain.WrapupEvening,
			now:        "2025-01-10T17:00:00Z",
			wantCount:  2,
			wantInUser: []string{"evening wrapup report for these 2 emails processed today", "[ARCHIVED]", `["Finance"]`},
		},
		{
			name:       "morning overnight",
			kind:       domain.WrapupMorning,
			now:        "2025-01-10T08:00:00Z",
			wantCount:  1,
			wantInUser: []string{"processed overnight", "late@x.com"},
		},
		{
			name:       "override replaces system prompt",
			kind:       domain.WrapupEvening,
			now:        "2025-01-10T17:00:00Z",
			override:   "Just list senders.",
			wantCount:  2,
			wantInUser: []string{"billing@acme.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := &fakeReports{}
			msgs := &fakeMessages{rows: []*domain.ProcessedMessage{
				{AccountID: 1, FromAddress: "late@x.com", Subject: "night", ProcessedAt: at("2025-01-09T22:00:00Z")},
				{AccountID: 1, FromAddress: "billing@acme.com", Subject: "Invoice", LabelsApplied: []string{"Finance"}, ProcessedAt: at("2025-01-10T09:00:00Z")},
				{AccountID: 1, FromAddress: "news@x.com", Subject: "Weekly", BypassedInbox: true, ProcessedAt: at("2025-01-10T12:00:00Z")},
			}}
			gen := &fakeGenerator{}
			svc := NewService(reports, msgs, &fakePrompts{content: tt.override}, gen, time.UTC)

			report, err := svc.Generate(context.Background(), 1, tt.kind, at(tt.now))
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if report == nil || len(reports.rows) != 1 {
				t.Fatal("expected one stored report")
			}
			if report.EmailCount != tt.wantCount || report.Kind != tt.kind || report.Content != "digest" {
				t.Errorf("report = %+v", report)
			}
			if report.ID == "" {
				t.Error("report id not set")
			}
			for _, s := range tt.wantInUser {
				if !strings.Contains(gen.user, s) {
					t.Errorf("user prompt missing %q:\n%s", s, gen.user)
				}
			}
			if tt.override != "" && gen.system != tt.override {
				t.Errorf("system prompt = %q", gen.system)
			}
			if tt.override == "" && gen.system != defaultWrapupPrompt {
				t.Error("default prompt expected")
			}
		})
	}
}

func TestUserPromptCapsListing(t *testing.T) {
	msgs := make([]*domain.ProcessedMessage, 130)
	for i := range msgs {
		msgs[i] = &domain.ProcessedMessage{FromAddress: "a@x.com", Subject: "s"}
	}
	got := userPrompt(domain.WrapupEvening, msgs)
	if n := strings.Count(got, "- a@x.com"); n != maxListedEmails {
		t.Errorf("listed = %d, want %d", n, maxListedEmails)
	}
	if !strings.Contains(got, "... and 30 more emails") {
		t.Error("missing overflow line")
	}
}

func TestGenerateFailures(t *testing.T) {
	msgs := &fakeMessages{rows: []*domain.ProcessedMessage{{AccountID: 1, ProcessedAt: at("2025-01-10T09:00:00Z")}}}
	now := at("2025-01-10T17:00:00Z")

	gen := &fakeGenerator{err: apperr.TransientProvider("openai", errors.New("429"))}
	reports := &fakeReports{}
	_, err := NewService(reports, msgs, &fakePrompts{}, gen, time.UTC).Generate(context.Background(), 1, domain.WrapupEvening, now)
	if !apperr.IsRetryable(err) || len(reports.rows) != 0 {
		t.Errorf("generator failure: err = %v, rows = %d", err, len(reports.rows))
	}

	reports = &fakeReports{err: errors.New("write failed")}
	_, err = NewService(reports, msgs, &fakePrompts{}, &fakeGenerator{}, time.UTC).Generate(context.Background(), 1, domain.WrapupEvening, now)
	if !apperr.IsKind(err, apperr.CodeDatabaseError) {
		t.Errorf("store failure: err = %v", err)
	}
}
