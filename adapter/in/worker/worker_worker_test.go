package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/adapter/out/messaging"
	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

func TestScheduleNext(t *testing.T) {
	mel, err := time.LoadLocation("Australia/Melbourne")
	if err != nil {
		t.Skip("tzdata not available")
	}

	tests := []struct {
		name     string
		schedule Schedule
		after    time.Time
		want     time.Time
	}{
		{"daily later today", Daily(17, 0, time.UTC), time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), time.Date(2025, 1, 6, 17, 0, 0, 0, time.UTC)},
		{"daily at the instant rolls over", Daily(17, 0, time.UTC), time.Date(2025, 1, 6, 17, 0, 0, 0, time.UTC), time.Date(2025, 1, 7, 17, 0, 0, 0, time.UTC)},
		{"weekly saturday", Weekly(time.Saturday, 18, 0, time.UTC), time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), time.Date(2025, 1, 11, 18, 0, 0, 0, time.UTC)},
		{"monthly first", Monthly(1, 19, 0, time.UTC), time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 19, 0, 0, 0, time.UTC)},
		{"yearly jan 1", Yearly(time.January, 1, 20, 0, time.UTC), time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)},
		{"zone aware", Daily(8, 0, mel), time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC), time.Date(2025, 1, 7, 8, 0, 0, 0, mel)},
		{"every", Every(5 * time.Minute), time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), time.Date(2025, 1, 6, 9, 5, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.schedule.Next(tt.after); !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func envelope(t *testing.T, jobType string, payload any) *messaging.Envelope {
	t.Helper()
	env, err := messaging.NewEnvelope(jobType, payload, messaging.PriorityNormal)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestDispatcherRoutes(t *testing.T) {
	tr, mem, wr := &fakeTriage{}, &fakeMemory{}, &fakeWrapup{}
	d := NewDispatcher(tr, mem, wr, zerolog.Nop())
	fixed := time.Date(2025, 1, 11, 18, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }
	ctx := context.Background()

	jobs := []*messaging.Envelope{
		envelope(t, messaging.JobTriageMessage, messaging.TriagePayload{AccountID: 1, MessageID: "m1"}),
		envelope(t, messaging.JobAccountPoll, messaging.PollPayload{AccountID: 1, HistoryID: 77}),
		envelope(t, messaging.JobMemoryBuild, messaging.MemoryBuildPayload{AccountID: 1, Tier: domain.TierWeekly}),
		envelope(t, messaging.JobWrapupGenerate, messaging.WrapupPayload{AccountID: 1, Kind: domain.WrapupEvening}),
	}
	for _, env := range jobs {
		if err := d.Handle(ctx, env); err != nil {
			t.Fatalf("Handle(%s) error = %v", env.Type, err)
		}
	}

	if len(tr.processed) != 1 || tr.processed[0] != "m1" {
		t.Errorf("processed = %v", tr.processed)
	}
	if len(tr.synced) != 1 {
		t.Errorf("synced = %v", tr.synced)
	}
	if len(mem.tiers) != 1 || mem.tiers[0] != domain.TierWeekly || !mem.at[0].Equal(fixed) {
		t.Errorf("memory builds = %v at %v", mem.tiers, mem.at)
	}
	if len(wr.kinds) != 1 || wr.kinds[0] != domain.WrapupEvening {
		t.Errorf("wrapups = %v", wr.kinds)
	}
}

func TestDispatcherErrors(t *testing.T) {
	tests := []struct {
		name      string
		env       *messaging.Envelope
		triageErr error
		wantErr   bool
		retryable bool
	}{
		{"missing account is dropped", envelope(t, messaging.JobTriageMessage, messaging.TriagePayload{AccountID: 9, MessageID: "m"}), apperr.NotFound("account 9"), false, false},
		{"transient is retried", envelope(t, messaging.JobTriageMessage, messaging.TriagePayload{AccountID: 9, MessageID: "m"}), apperr.TransientProvider("gmail", nil), true, true},
		{"unknown type", &messaging.Envelope{ID: "x", Type: "mail.send", Payload: []byte(`{}`)}, nil, true, false},
		{"bad tier", envelope(t, messaging.JobMemoryBuild, map[string]any{"account_id": 1, "tier": "hourly"}), nil, true, false},
		{"bad payload", &messaging.Envelope{ID: "x", Type: messaging.JobAccountPoll, Payload: []byte(`"nope"`)}, nil, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(&fakeTriage{err: tt.triageErr}, &fakeMemory{}, &fakeWrapup{}, zerolog.Nop())
			err := d.Handle(context.Background(), tt.env)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && apperr.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", err, !tt.retryable, tt.retryable)
			}
		})
	}
}

func TestAccountSourceEachPagesAndIsolatesFailures(t *testing.T) {
	repo := &fakeAccounts{}
	for i := int64(1); i <= 7; i++ {
		repo.accounts = append(repo.accounts, &domain.Account{ID: i, IsActive: i != 4})
	}
	src := NewAccountSource(repo, 3, zerolog.Nop())
	src.pageSize = 2

	seen := make(chan int64, 10)
	failed, err := src.Each(context.Background(), "test", func(ctx context.Context, a *domain.Account) error {
		seen <- a.ID
		if a.ID == 5 {
			return errors.New("boom")
		}
		return nil
	})
	close(seen)
	if err != nil {
		t.Fatalf("Each() error = %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}

	var ids []int64
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if fmt.Sprint(ids) != "[1 2 3 5 6 7]" {
		t.Errorf("visited = %v", ids)
	}
	if repo.pages != 4 {
		t.Errorf("pages = %d, want 4", repo.pages)
	}
}

func TestAccountSourceListError(t *testing.T) {
	repo := &fakeAccounts{failList: errors.New("db down")}
	src := NewAccountSource(repo, 2, zerolog.Nop())

	if _, err := src.Each(context.Background(), "test", func(ctx context.Context, a *domain.Account) error { return nil }); err == nil {
		t.Fatal("expected list error")
	}
}

func TestSweepsPublishPerAccount(t *testing.T) {
	repo := &fakeAccounts{accounts: []*domain.Account{{ID: 1, IsActive: true}, {ID: 2, IsActive: true}, {ID: 3, IsActive: true}}}
	pub := &fakePublisher{fail: map[int64]bool{2: true}}
	accounts := &fakeAccountService{}
	s := NewSweeps(NewAccountSource(repo, 2, zerolog.Nop()), pub, accounts, "projects/p/topics/gmail", zerolog.Nop())
	ctx := context.Background()

	s.Memory(domain.TierMonthly)(ctx, time.Now())
	s.RenewWatches(ctx, time.Now())

	var memoryFor []int64
	for _, j := range pub.jobs {
		if j.kind == "memory" && j.value == "monthly" {
			memoryFor = append(memoryFor, j.accountID)
		}
	}
	sort.Slice(memoryFor, func(i, j int) bool { return memoryFor[i] < memoryFor[j] })
	if fmt.Sprint(memoryFor) != "[1 3]" {
		t.Errorf("memory jobs for %v, want [1 3]", memoryFor)
	}
	if len(accounts.renewed) != 3 {
		t.Errorf("renewed = %v", accounts.renewed)
	}
}

func TestSweepsRegister(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	s := NewSweeps(nil, nil, nil, "", zerolog.Nop())
	s.Register(sched, 5*time.Minute, time.UTC)

	names := make(map[string]string)
	for _, e := range sched.entries {
		names[e.name] = e.schedule.String()
	}
	if _, ok := names["watch.renew"]; ok {
		t.Error("watch renewal needs a topic")
	}
	if got := names["memory.weekly"]; got != "weekly Monday 00:30 UTC" {
		t.Errorf("memory.weekly = %q", got)
	}
	if len(names) != 7 {
		t.Errorf("registered %d tasks: %v", len(names), names)
	}
}

type recordingSettler struct {
	errs chan error
}

func (r *recordingSettler) Settle(ctx context.Context, d *messaging.Delivery, err error) {
	r.errs <- err
}

type handlerFunc func(ctx context.Context, env *messaging.Envelope) error

func (f handlerFunc) Handle(ctx context.Context, env *messaging.Envelope) error { return f(ctx, env) }

func TestPoolSettlesEveryDelivery(t *testing.T) {
	settler := &recordingSettler{errs: make(chan error, 4)}
	handler := handlerFunc(func(ctx context.Context, env *messaging.Envelope) error {
		if env.ID == "slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	p := NewPool(handler, settler, PoolConfig{Workers: 2, JobTimeout: 50 * time.Millisecond}, nil, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	p.Submit(ctx, &messaging.Delivery{ID: "1-0", Envelope: &messaging.Envelope{ID: "fast", Type: messaging.JobAccountPoll}})
	p.Submit(ctx, &messaging.Delivery{ID: "2-0", Envelope: &messaging.Envelope{ID: "slow", Type: messaging.JobAccountPoll}})

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	p.Stop(stopCtx)

	close(settler.errs)
	var timeouts, ok int
	for err := range settler.errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, context.DeadlineExceeded):
			timeouts++
		}
	}
	if ok != 1 || timeouts != 1 {
		t.Errorf("ok = %d, timeouts = %d", ok, timeouts)
	}
	if processed, failed := p.Counts(); processed != 1 || failed != 1 {
		t.Errorf("Counts() = %d, %d", processed, failed)
	}

	// submissions after Stop are ignored
	p.Submit(ctx, &messaging.Delivery{ID: "3-0", Envelope: &messaging.Envelope{ID: "late", Type: messaging.JobAccountPoll}})
}
