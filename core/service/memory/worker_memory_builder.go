// Package memory builds the daily → weekly → monthly → yearly memory
// hierarchy and renders it as context for the decision stage.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/cache"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

const (
	defaultLockTTL  = 10 * time.Minute
	rollingLookback = 24 * time.Hour
)

// Service implements in.MemoryService.
type Service struct {
	memories  out.MemoryRepository
	messages  out.ProcessedMessageRepository
	labels    out.LabelRepository
	prompts   out.PromptRepository
	generator out.TextGenerator
	locks     out.Cache
	loc       *time.Location
	lockTTL   time.Duration
}

var _ in.MemoryService = (*Service)(nil)

type Deps struct {
	Memories  out.MemoryRepository
	Messages  out.ProcessedMessageRepository
	Labels    out.LabelRepository
	Prompts   out.PromptRepository
	Generator out.TextGenerator
	// Locks serializes builds per account. Defaults to an in-process cache.
	Locks    out.Cache
	Location *time.Location
}

func NewService(deps Deps) *Service {
	locks := deps.Locks
	if locks == nil {
		locks = cache.NewMemoryCache()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		memories:  deps.Memories,
		messages:  deps.Messages,
		labels:    deps.Labels,
		prompts:   deps.Prompts,
		generator: deps.Generator,
		locks:     locks,
		loc:       loc,
		lockTTL:   defaultLockTTL,
	}
}

// BuildThrough runs daily, then each coarser tier up to tier, holding the
// account's build lock so a tier never reads a lower tier mid-build.
func (s *Service) BuildThrough(ctx context.Context, accountID int64, tier domain.Tier, now time.Time) ([]*domain.Memory, error) {
	lock, ok, err := cache.TryLock(ctx, s.locks, fmt.Sprintf("memory:%d", accountID), s.lockTTL)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}
	if !ok {
		return nil, apperr.Conflict(fmt.Sprintf("memory build already running for account %d", accountID))
	}
	defer lock.Release(context.WithoutCancel(ctx))

	var built []*domain.Memory
	for _, t := range domain.Tiers {
		m, err := s.Build(ctx, accountID, t, now)
		if err != nil {
			return built, fmt.Errorf("%s memory: %w", t, err)
		}
		if m != nil {
			built = append(built, m)
		}
		if t == tier {
			break
		}
	}
	return built, nil
}

// Build creates the next instance of one tier. It returns nil when there is
// nothing new to summarize. Callers that need tier ordering use BuildThrough.
func (s *Service) Build(ctx context.Context, accountID int64, tier domain.Tier, now time.Time) (*domain.Memory, error) {
	log := logger.WithAccount(accountID).WithField("tier", string(tier))

	prior, err := s.memories.Latest(ctx, accountID, tier)
	if err != nil {
		return nil, apperr.DatabaseError("latest memory", err)
	}

	window := domain.NextWindow(tier, now, s.loc, prior)
	if window.Empty() {
		log.Debug("[MemoryService.Build] %s already covered", window)
		return nil, nil
	}

	override, err := s.override(ctx, accountID, tier.PromptType())
	if err != nil {
		return nil, err
	}

	var content string
	if lower, ok := tier.Lower(); ok {
		sources, err := s.memories.ListWithin(ctx, accountID, lower, window.Start, window.End)
		if err != nil {
			return nil, apperr.DatabaseError("list lower tier memories", err)
		}
		if len(sources) == 0 {
			log.Info("[MemoryService.Build] no new %s memories in %s, skipping", lower, window)
			return nil, nil
		}
		content, err = s.generator.Generate(ctx,
			consolidationSystemPrompt(override, tier, prior),
			consolidationUserPrompt(tier, prior, sources, s.loc))
		if err != nil {
			return nil, err
		}
		log.Info("[MemoryService.Build] consolidated %d %s memories", len(sources), lower)
	} else {
		msgs, err := s.dailySource(ctx, accountID, window, now)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			log.Info("[MemoryService.Build] no processed emails for %s, skipping", window)
			return nil, nil
		}
		catalog, err := s.labels.ListByAccount(ctx, accountID)
		if err != nil {
			return nil, apperr.DatabaseError("list labels", err)
		}
		content, err = s.generator.Generate(ctx, dailySystemPrompt(override, catalog), dailyUserPrompt(msgs))
		if err != nil {
			return nil, err
		}
		log.Info("[MemoryService.Build] summarized %d emails", len(msgs))
	}

	m := &domain.Memory{
		AccountID: accountID,
		Tier:      tier,
		Content:   content,
		StartDate: window.Start.UTC(),
		EndDate:   window.End.UTC(),
		CreatedAt: now.UTC(),
	}
	if err := s.memories.Create(ctx, m); err != nil {
		return nil, apperr.DatabaseError("create memory", err)
	}
	return m, nil
}

// dailySource reads records in the window, falling back to the last 24 hours
// when the calendar window is empty.
func (s *Service) dailySource(ctx context.Context, accountID int64, window domain.Window, now time.Time) ([]*domain.ProcessedMessage, error) {
	msgs, err := s.messages.ListBetween(ctx, accountID, window.Start, window.End)
	if err != nil {
		return nil, apperr.DatabaseError("list processed messages", err)
	}
	if len(msgs) > 0 {
		return msgs, nil
	}

	msgs, err = s.messages.ListBetween(ctx, accountID, now.Add(-rollingLookback), now)
	if err != nil {
		return nil, apperr.DatabaseError("list processed messages", err)
	}
	return msgs, nil
}

func (s *Service) override(ctx context.Context, accountID int64, promptType domain.PromptType) (string, error) {
	prompt, err := s.prompts.GetActive(ctx, accountID, promptType)
	if err != nil {
		return "", apperr.DatabaseError("get prompt override", err)
	}
	if prompt == nil {
		return "", nil
	}
	return prompt.Content, nil
}

// ContextFor returns the latest yearly, monthly and weekly memory and up to
// seven daily ones, coarsest first.
func (s *Service) ContextFor(ctx context.Context, accountID int64) (string, error) {
	var all []*domain.Memory
	for i := len(domain.Tiers) - 1; i >= 0; i-- {
		tier := domain.Tiers[i]
		ms, err := s.memories.Recent(ctx, accountID, tier, tier.ContextLimit())
		if err != nil {
			return "", apperr.DatabaseError("recent memories", err)
		}
		all = append(all, ms...)
	}
	return renderContext(all), nil
}

func (s *Service) List(ctx context.Context, accountID int64, tier domain.Tier, limit int) ([]*domain.Memory, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	ms, err := s.memories.Recent(ctx, accountID, tier, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list memories", err)
	}
	return ms, nil
}
