package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts []*domain.Account
	pages    int
	failList error
}

func (f *fakeAccounts) Get(ctx context.Context, id int64) (*domain.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeAccounts) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return nil, out.ErrNotFound
}

func (f *fakeAccounts) ListActive(ctx context.Context, afterID int64, limit int) ([]*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages++
	if f.failList != nil {
		return nil, f.failList
	}
	sorted := append([]*domain.Account(nil), f.accounts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var page []*domain.Account
	for _, a := range sorted {
		if a.ID > afterID && a.IsActive {
			page = append(page, a)
			if len(page) == limit {
				break
			}
		}
	}
	return page, nil
}

func (f *fakeAccounts) Upsert(ctx context.Context, account *domain.Account) error { return nil }
func (f *fakeAccounts) AdvanceCursor(ctx context.Context, id int64, cursor uint64, checkedAt time.Time) (bool, error) {
	return false, nil
}
func (f *fakeAccounts) UpdateToken(ctx context.Context, id int64, token *oauth2.Token) error {
	return nil
}
func (f *fakeAccounts) SetActive(ctx context.Context, id int64, active bool) error { return nil }

type published struct {
	kind      string
	accountID int64
	value     string
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []published
	fail map[int64]bool
}

func (f *fakePublisher) add(kind string, accountID int64, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[accountID] {
		return errors.New("redis down")
	}
	f.jobs = append(f.jobs, published{kind, accountID, value})
	return nil
}

func (f *fakePublisher) EnqueueTriage(ctx context.Context, accountID int64, messageIDs ...string) error {
	for _, id := range messageIDs {
		if err := f.add("triage", accountID, id); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePublisher) PublishPoll(ctx context.Context, accountID int64, historyID uint64) error {
	return f.add("poll", accountID, "")
}

func (f *fakePublisher) PublishMemoryBuild(ctx context.Context, accountID int64, tier domain.Tier) error {
	return f.add("memory", accountID, string(tier))
}

func (f *fakePublisher) PublishWrapup(ctx context.Context, accountID int64, kind domain.WrapupKind) error {
	return f.add("wrapup", accountID, string(kind))
}

type fakeTriage struct {
	processed []string
	synced    []int64
	err       error
}

func (f *fakeTriage) Process(ctx context.Context, accountID int64, messageID string) error {
	f.processed = append(f.processed, messageID)
	return f.err
}

func (f *fakeTriage) Sync(ctx context.Context, accountID int64) (*in.SyncResult, error) {
	f.synced = append(f.synced, accountID)
	return &in.SyncResult{AccountID: accountID}, f.err
}

func (f *fakeTriage) SetFeedback(ctx context.Context, accountID int64, messageID, feedback string) error {
	return nil
}

func (f *fakeTriage) ListProcessed(ctx context.Context, accountID int64, limit, offset int) ([]*domain.ProcessedMessage, error) {
	return nil, nil
}

type fakeMemory struct {
	tiers []domain.Tier
	at    []time.Time
}

func (f *fakeMemory) BuildThrough(ctx context.Context, accountID int64, tier domain.Tier, now time.Time) ([]*domain.Memory, error) {
	f.tiers = append(f.tiers, tier)
	f.at = append(f.at, now)
	return nil, nil
}

func (f *fakeMemory) ContextFor(ctx context.Context, accountID int64) (string, error) { return "", nil }

func (f *fakeMemory) List(ctx context.Context, accountID int64, tier domain.Tier, limit int) ([]*domain.Memory, error) {
	return nil, nil
}

type fakeWrapup struct {
	kinds []domain.WrapupKind
}

func (f *fakeWrapup) Generate(ctx context.Context, accountID int64, kind domain.WrapupKind, now time.Time) (*domain.WrapupReport, error) {
	f.kinds = append(f.kinds, kind)
	return nil, nil
}

func (f *fakeWrapup) ListRecent(ctx context.Context, accountID int64, limit int) ([]*domain.WrapupReport, error) {
	return nil, nil
}

type fakeAccountService struct {
	mu      sync.Mutex
	renewed []int64
}

func (f *fakeAccountService) AuthURL(state string) string { return "" }
func (f *fakeAccountService) Connect(ctx context.Context, code string) (*domain.Account, error) {
	return nil, nil
}
func (f *fakeAccountService) RenewWatch(ctx context.Context, accountID int64, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewed = append(f.renewed, accountID)
	return nil
}
