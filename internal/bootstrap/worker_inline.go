package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

// inlinePublisher runs jobs in the caller instead of queueing them. It backs
// the one-shot CLI commands when no Redis is configured.
type inlinePublisher struct {
	triage in.TriageService
	memory in.MemoryService
	wrapup in.WrapupService
}

func (p *inlinePublisher) EnqueueTriage(ctx context.Context, accountID int64, messageIDs ...string) error {
	var errs []error
	for _, id := range messageIDs {
		if err := p.triage.Process(ctx, accountID, id); err != nil && !apperr.IsSkip(err) {
			logger.WithAccount(accountID).WithMessage(id).WithError(err).Error("inline triage failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *inlinePublisher) PublishPoll(ctx context.Context, accountID int64, _ uint64) error {
	_, err := p.triage.Sync(ctx, accountID)
	return err
}

func (p *inlinePublisher) PublishMemoryBuild(ctx context.Context, accountID int64, tier domain.Tier) error {
	_, err := p.memory.BuildThrough(ctx, accountID, tier, time.Now())
	return err
}

func (p *inlinePublisher) PublishWrapup(ctx context.Context, accountID int64, kind domain.WrapupKind) error {
	_, err := p.wrapup.Generate(ctx, accountID, kind, time.Now())
	return err
}
