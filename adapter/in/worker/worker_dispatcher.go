package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/adapter/out/messaging"
	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

// Dispatcher routes queue jobs to the services.
type Dispatcher struct {
	triage in.TriageService
	memory in.MemoryService
	wrapup in.WrapupService
	log    zerolog.Logger
	now    func() time.Time
}

func NewDispatcher(triage in.TriageService, memory in.MemoryService, wrapup in.WrapupService, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		triage: triage,
		memory: memory,
		wrapup: wrapup,
		log:    log.With().Str("component", "dispatcher").Logger(),
		now:    time.Now,
	}
}

// Handle runs one job. Jobs whose subject no longer exists are dropped.
func (d *Dispatcher) Handle(ctx context.Context, env *messaging.Envelope) error {
	err := d.handle(ctx, env)
	if err != nil && apperr.IsSkip(err) {
		d.log.Info().Err(err).Str("job_id", env.ID).Str("job_type", env.Type).Msg("dropping job for missing resource")
		return nil
	}
	return err
}

func (d *Dispatcher) handle(ctx context.Context, env *messaging.Envelope) error {
	switch env.Type {
	case messaging.JobTriageMessage:
		p, err := messaging.ParsePayload[messaging.TriagePayload](env)
		if err != nil {
			return apperr.BadRequest(err.Error())
		}
		return d.triage.Process(ctx, p.AccountID, p.MessageID)

	case messaging.JobAccountPoll:
		p, err := messaging.ParsePayload[messaging.PollPayload](env)
		if err != nil {
			return apperr.BadRequest(err.Error())
		}
		_, err = d.triage.Sync(ctx, p.AccountID)
		return err

	case messaging.JobMemoryBuild:
		p, err := messaging.ParsePayload[messaging.MemoryBuildPayload](env)
		if err != nil {
			return apperr.BadRequest(err.Error())
		}
		if _, err := domain.ParseTier(string(p.Tier)); err != nil {
			return apperr.BadRequest(err.Error())
		}
		built, err := d.memory.BuildThrough(ctx, p.AccountID, p.Tier, d.now())
		if err == nil {
			d.log.Info().Int64("account_id", p.AccountID).Str("tier", string(p.Tier)).Int("built", len(built)).Msg("memory build finished")
		}
		return err

	case messaging.JobWrapupGenerate:
		p, err := messaging.ParsePayload[messaging.WrapupPayload](env)
		if err != nil {
			return apperr.BadRequest(err.Error())
		}
		if _, err := domain.ParseWrapupKind(string(p.Kind)); err != nil {
			return apperr.BadRequest(err.Error())
		}
		_, err = d.wrapup.Generate(ctx, p.AccountID, p.Kind, d.now())
		return err

	default:
		d.log.Warn().Str("job_type", env.Type).Msg("unknown job type")
		return apperr.BadRequest("unknown job type " + env.Type)
	}
}
