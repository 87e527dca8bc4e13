package triage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	advances int
}

func newFakeAccounts(accounts ...*domain.Account) *fakeAccounts {
	f := &fakeAccounts{accounts: make(map[int64]*domain.Account)}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Get(_ context.Context, id int64) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeAccounts) ListActive(_ context.Context, afterID int64, limit int) ([]*domain.Account, error) {
	return nil, nil
}

func (f *fakeAccounts) Upsert(_ context.Context, a *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[a.ID] = a
	return nil
}

func (f *fakeAccounts) AdvanceCursor(_ context.Context, id int64, cursor uint64, checkedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances++
	a := f.accounts[id]
	a.LastCheckedAt = &checkedAt
	if a.LastHistoryID != nil && *a.LastHistoryID >= cursor {
		return false, nil
	}
	a.LastHistoryID = &cursor
	return true, nil
}

func (f *fakeAccounts) UpdateToken(context.Context, int64, *oauth2.Token) error { return nil }
func (f *fakeAccounts) SetActive(context.Context, int64, bool) error            { return nil }

type fakeMessages struct {
	mu   sync.Mutex
	rows map[string]*domain.ProcessedMessage
	// raceOnCreate makes Create report a duplicate, as if another worker won.
	raceOnCreate bool
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{rows: make(map[string]*domain.ProcessedMessage)}
}

func msgKey(accountID int64, id string) string {
	return fmt.Sprintf("%d/%s", accountID, id)
}

func (f *fakeMessages) Exists(_ context.Context, accountID int64, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[msgKey(accountID, id)]
	return ok, nil
}

func (f *fakeMessages) Create(_ context.Context, m *domain.ProcessedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raceOnCreate {
		return out.ErrDuplicate
	}
	k := msgKey(m.AccountID, m.MessageID)
	if _, ok := f.rows[k]; ok {
		return out.ErrDuplicate
	}
	f.rows[k] = m
	return nil
}

func (f *fakeMessages) Get(_ context.Context, accountID int64, id string) (*domain.ProcessedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[msgKey(accountID, id)]
	if !ok {
		return nil, out.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessages) ListBetween(_ context.Context, accountID int64, start, end time.Time) ([]*domain.ProcessedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*domain.ProcessedMessage
	for _, m := range f.rows {
		if m.AccountID == accountID && !m.ProcessedAt.Before(start) && m.ProcessedAt.Before(end) {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProcessedAt.Before(res[j].ProcessedAt) })
	return res, nil
}

func (f *fakeMessages) ListRecent(_ context.Context, accountID int64, limit, offset int) ([]*domain.ProcessedMessage, error) {
	return nil, nil
}

func (f *fakeMessages) UpdateFeedback(_ context.Context, accountID int64, id, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[msgKey(accountID, id)]
	if !ok {
		return out.ErrNotFound
	}
	m.HumanFeedback = feedback
	return nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeSenders struct {
	mu       sync.Mutex
	slugs    []string
	recorded []string
}

func (f *fakeSenders) RecentSlugs(context.Context, int64, string, int) ([]string, error) {
	return f.slugs, nil
}

func (f *fakeSenders) Record(_ context.Context, _ int64, sender, slug string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, sender+"="+slug)
	return nil
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

// fakeProvider records every write-back call.
type fakeProvider struct {
	mu         sync.Mutex
	messages   map[string]*domain.MailMessage
	labels     []out.ProviderLabel
	newIDs     []string
	current    uint64
	historyErr error
	cursorErr  error

	listed     []uint64
	created    []string
	applied    map[string][]string
	archived   []string
	writeCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{messages: make(map[string]*domain.MailMessage), applied: make(map[string][]string)}
}

func (f *fakeProvider) ListNewMessageIDs(_ context.Context, cursor uint64) ([]string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, cursor)
	if f.historyErr != nil {
		return nil, 0, f.historyErr
	}
	return f.newIDs, f.current, nil
}

func (f *fakeProvider) CurrentCursor(context.Context) (uint64, error) {
	if f.cursorErr != nil {
		return 0, f.cursorErr
	}
	return f.current, nil
}

func (f *fakeProvider) GetMessage(_ context.Context, id string) (*domain.MailMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, out.NewProviderError("gmail", out.ProviderErrNotFound, "message not found", nil, false)
	}
	return m, nil
}

func (f *fakeProvider) ListLabels(context.Context) ([]out.ProviderLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]out.ProviderLabel(nil), f.labels...), nil
}

func (f *fakeProvider) CreateLabel(_ context.Context, name string) (out.ProviderLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	l := out.ProviderLabel{ID: "Label_" + name, Name: name}
	f.labels = append(f.labels, l)
	f.created = append(f.created, name)
	return l, nil
}

func (f *fakeProvider) ApplyLabels(_ context.Context, id string, labelIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	f.applied[id] = append(f.applied[id], labelIDs...)
	return nil
}

func (f *fakeProvider) Archive(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	f.archived = append(f.archived, id)
	return nil
}

func (f *fakeProvider) Watch(context.Context, string) (uint64, time.Time, error) {
	return f.current, time.Time{}, nil
}

type fakeFactory struct {
	provider *fakeProvider
	err      error
}

func (f *fakeFactory) ForAccount(context.Context, *domain.Account) (out.MailProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

type fakeClassifier struct {
	mu     sync.Mutex
	result domain.Analysis
	err    error
	inputs []out.AnalyzeInput
}

func (f *fakeClassifier) Analyze(_ context.Context, in out.AnalyzeInput) (domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return f.result, f.err
}

type fakeDecider struct {
	mu     sync.Mutex
	result domain.Decision
	err    error
	inputs []out.DecideInput
}

func (f *fakeDecider) Decide(_ context.Context, in out.DecideInput) (domain.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return f.result, f.err
}

type fakeMemory struct{ text string }

func (f *fakeMemory) ContextFor(context.Context, int64) (string, error) { return f.text, nil }

type fakePublisher struct {
	enqueued []string
	err      error
	// onEnqueue observes the account state at enqueue time.
	onEnqueue func()
}

func (f *fakePublisher) EnqueueTriage(_ context.Context, _ int64, ids ...string) error {
	if f.onEnqueue != nil {
		f.onEnqueue()
	}
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, ids...)
	return nil
}

func (f *fakePublisher) PublishPoll(context.Context, int64, uint64) error               { return nil }
func (f *fakePublisher) PublishMemoryBuild(context.Context, int64, domain.Tier) error   { return nil }
func (f *fakePublisher) PublishWrapup(context.Context, int64, domain.WrapupKind) error { return nil }

var errBoom = apperr.TransientProvider("gmail", nil)

func cursorPtr(v uint64) *uint64 { return &v }
