package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

var errBoom = errors.New("boom")

type fakeMemories struct {
	mu   sync.Mutex
	rows []*domain.Memory
	next int64
}

func (f *fakeMemories) Create(_ context.Context, m *domain.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	m.ID = f.next
	cp := *m
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeMemories) Latest(_ context.Context, accountID int64, tier domain.Tier) (*domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Memory
	for _, m := range f.rows {
		if m.AccountID != accountID || m.Tier != tier {
			continue
		}
		if latest == nil || !m.CreatedAt.Before(latest.CreatedAt) {
			latest = m
		}
	}
	return latest, nil
}

func (f *fakeMemories) ListWithin(_ context.Context, accountID int64, tier domain.Tier, start, end time.Time) ([]*domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*domain.Memory
	for _, m := range f.rows {
		if m.AccountID != accountID || m.Tier != tier {
			continue
		}
		if m.StartDate.Before(start) || m.EndDate.After(end) {
			continue
		}
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StartDate.Before(res[j].StartDate) })
	return res, nil
}

func (f *fakeMemories) Recent(_ context.Context, accountID int64, tier domain.Tier, limit int) ([]*domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*domain.Memory
	for i := len(f.rows) - 1; i >= 0 && len(res) < limit; i-- {
		if m := f.rows[i]; m.AccountID == accountID && m.Tier == tier {
			res = append(res, m)
		}
	}
	return res, nil
}

func (f *fakeMemories) ofTier(tier domain.Tier) []*domain.Memory {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*domain.Memory
	for _, m := range f.rows {
		if m.Tier == tier {
			res = append(res, m)
		}
	}
	return res
}

type fakeMessages struct {
	rows []*domain.ProcessedMessage
	err  error
}

func (f *fakeMessages) Exists(context.Context, int64, string) (bool, error) { return false, nil }
func (f *fakeMessages) Create(context.Context, *domain.ProcessedMessage) error {
	return nil
}
func (f *fakeMessages) Get(context.Context, int64, string) (*domain.ProcessedMessage, error) {
	return nil, nil
}
func (f *fakeMessages) ListRecent(context.Context, int64, int, int) ([]*domain.ProcessedMessage, error) {
	return nil, nil
}
func (f *fakeMessages) UpdateFeedback(context.Context, int64, string, string) error { return nil }

func (f *fakeMessages) ListBetween(_ context.Context, accountID int64, start, end time.Time) ([]*domain.ProcessedMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	var res []*domain.ProcessedMessage
	for _, m := range f.rows {
		if m.AccountID == accountID && !m.ProcessedAt.Before(start) && m.ProcessedAt.Before(end) {
			res = append(res, m)
		}
	}
	return res, nil
}

type fakeLabels struct{ catalog domain.LabelCatalog }

func (f *fakeLabels) ListByAccount(context.Context, int64) (domain.LabelCatalog, error) {
	return f.catalog, nil
}

type fakePrompts struct{ overrides map[domain.PromptType]string }

func (f *fakePrompts) GetActive(_ context.Context, accountID int64, t domain.PromptType) (*domain.PromptOverride, error) {
	content, ok := f.overrides[t]
	if !ok {
		return nil, nil
	}
	return &domain.PromptOverride{AccountID: accountID, Type: t, Content: content, IsActive: true}, nil
}

type generateCall struct {
	system string
	user   string
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  []generateCall
	output string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{system, user})
	if f.err != nil {
		return "", f.err
	}
	if f.output == "" {
		return "- learned something", nil
	}
	return f.output, nil
}

func date(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
