package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// Sweeps fan scheduled work out to every active account.
type Sweeps struct {
	source    *AccountSource
	publisher out.JobPublisher
	accounts  in.AccountService
	topic     string
	log       zerolog.Logger
}

// NewSweeps creates the sweep set. Watch renewal runs only when topic is set.
func NewSweeps(source *AccountSource, publisher out.JobPublisher, accounts in.AccountService, topic string, log zerolog.Logger) *Sweeps {
	return &Sweeps{
		source:    source,
		publisher: publisher,
		accounts:  accounts,
		topic:     topic,
		log:       log.With().Str("component", "sweeps").Logger(),
	}
}

// Register adds every sweep to sched, in loc.
func (s *Sweeps) Register(sched *Scheduler, pollInterval time.Duration, loc *time.Location) {
	sched.Add("poll", Every(pollInterval), s.Poll)
	sched.Add("wrapup.morning", Daily(8, 0, loc), s.Wrapup(domain.WrapupMorning))
	sched.Add("wrapup.evening", Daily(17, 0, loc), s.Wrapup(domain.WrapupEvening))
	sched.Add("memory.daily", Daily(17, 0, loc), s.Memory(domain.TierDaily))
	// just after the Monday boundary so the finished week is covered
	sched.Add("memory.weekly", Weekly(time.Monday, 0, 30, loc), s.Memory(domain.TierWeekly))
	sched.Add("memory.monthly", Monthly(1, 19, 0, loc), s.Memory(domain.TierMonthly))
	sched.Add("memory.yearly", Yearly(time.January, 1, 20, 0, loc), s.Memory(domain.TierYearly))
	if s.topic != "" {
		sched.Add("watch.renew", Daily(9, 0, loc), s.RenewWatches)
	}
}

// Poll queues a history sync for each account.
func (s *Sweeps) Poll(ctx context.Context, _ time.Time) {
	s.run(ctx, "poll", func(ctx context.Context, a *domain.Account) error {
		return s.publisher.PublishPoll(ctx, a.ID, 0)
	})
}

func (s *Sweeps) Wrapup(kind domain.WrapupKind) Task {
	return func(ctx context.Context, _ time.Time) {
		s.run(ctx, "wrapup."+string(kind), func(ctx context.Context, a *domain.Account) error {
			return s.publisher.PublishWrapup(ctx, a.ID, kind)
		})
	}
}

// Memory queues a build through tier; lower tiers are rebuilt first by the job.
func (s *Sweeps) Memory(tier domain.Tier) Task {
	return func(ctx context.Context, _ time.Time) {
		s.run(ctx, "memory."+string(tier), func(ctx context.Context, a *domain.Account) error {
			return s.publisher.PublishMemoryBuild(ctx, a.ID, tier)
		})
	}
}

// RenewWatches re-registers Gmail push for each account directly.
func (s *Sweeps) RenewWatches(ctx context.Context, _ time.Time) {
	s.run(ctx, "watch.renew", func(ctx context.Context, a *domain.Account) error {
		return s.accounts.RenewWatch(ctx, a.ID, s.topic)
	})
}

func (s *Sweeps) run(ctx context.Context, name string, fn func(ctx context.Context, a *domain.Account) error) {
	if _, err := s.source.Each(ctx, name, fn); err != nil {
		s.log.Error().Err(err).Str("sweep", name).Msg("sweep aborted")
	}
}
