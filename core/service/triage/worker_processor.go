// Package triage detects new mail and runs each message through
// classification, decision and write-back.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
	"github.com/denwilliams/gmail-triage-assistant/pkg/metrics"
)

// MemoryContext renders past learnings for the decision stage.
type MemoryContext interface {
	ContextFor(ctx context.Context, accountID int64) (string, error)
}

// Processor runs the per-message pipeline:
// stage 1 → stage 2 → persist → write-back.
type Processor struct {
	accounts   out.AccountRepository
	messages   out.ProcessedMessageRepository
	senders    out.SenderHistory
	labels     out.LabelRepository
	prompts    out.PromptRepository
	providers  out.MailProviderFactory
	classifier out.Classifier
	decider    out.Decider
	memory     MemoryContext
	applier    *Applier
	now        func() time.Time
}

type ProcessorDeps struct {
	Accounts   out.AccountRepository
	Messages   out.ProcessedMessageRepository
	Senders    out.SenderHistory
	Labels     out.LabelRepository
	Prompts    out.PromptRepository
	Providers  out.MailProviderFactory
	Classifier out.Classifier
	Decider    out.Decider
	Memory     MemoryContext
	Applier    *Applier
}

func NewProcessor(deps ProcessorDeps) *Processor {
	applier := deps.Applier
	if applier == nil {
		applier = NewApplier(nil)
	}
	return &Processor{
		accounts:   deps.Accounts,
		messages:   deps.Messages,
		senders:    deps.Senders,
		labels:     deps.Labels,
		prompts:    deps.Prompts,
		providers:  deps.Providers,
		classifier: deps.Classifier,
		decider:    deps.Decider,
		memory:     deps.Memory,
		applier:    applier,
		now:        time.Now,
	}
}

// Process triages one message. It returns nil for messages already handled
// or gone from the mailbox, and a NotFound error when the account is missing.
func (p *Processor) Process(ctx context.Context, accountID int64, messageID string) error {
	start := time.Now()
	log := logger.WithContext(ctx).WithAccount(accountID).WithMessage(messageID)

	account, err := p.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return apperr.NotFound(fmt.Sprintf("account %d", accountID))
		}
		return apperr.DatabaseError("get account", err)
	}
	if !account.IsActive {
		log.Info("[Processor] account inactive, dropping message")
		metrics.Inc("triage.skipped")
		return nil
	}

	exists, err := p.messages.Exists(ctx, accountID, messageID)
	if err != nil {
		return apperr.DatabaseError("check processed message", err)
	}
	if exists {
		log.Debug("[Processor] already processed")
		metrics.Inc("triage.skipped")
		return nil
	}

	provider, err := p.providers.ForAccount(ctx, account)
	if err != nil {
		return err
	}

	msg, err := provider.GetMessage(ctx, messageID)
	if err != nil {
		if apperr.IsSkip(err) {
			log.Info("[Processor] message no longer exists")
			metrics.Inc("triage.skipped")
			return nil
		}
		return err
	}

	// Stage 1: classification
	pastSlugs, err := p.senders.RecentSlugs(ctx, accountID, msg.From, domain.RecentSlugLimit)
	if err != nil {
		log.WithError(err).Warn("[Processor] sender history unavailable")
		pastSlugs = nil
	}
	analyzeOverride, err := p.override(ctx, accountID, domain.PromptEmailAnalyze)
	if err != nil {
		return err
	}

	analysis, err := p.classifier.Analyze(ctx, out.AnalyzeInput{
		From:      msg.From,
		Subject:   msg.Subject,
		Body:      msg.Body,
		PastSlugs: pastSlugs,
		Override:  analyzeOverride,
	})
	if err != nil {
		return err
	}

	// Stage 2: decision
	catalog, err := p.labels.ListByAccount(ctx, accountID)
	if err != nil {
		return apperr.DatabaseError("list labels", err)
	}
	memoryContext, err := p.memory.ContextFor(ctx, accountID)
	if err != nil {
		log.WithError(err).Warn("[Processor] memory context unavailable")
		memoryContext = ""
	}
	actionsOverride, err := p.override(ctx, accountID, domain.PromptEmailActions)
	if err != nil {
		return err
	}

	decision, err := p.decider.Decide(ctx, out.DecideInput{
		From:          msg.From,
		Subject:       msg.Subject,
		Analysis:      analysis,
		Catalog:       catalog,
		MemoryContext: memoryContext,
		Override:      actionsOverride,
	})
	if err != nil {
		return err
	}

	labels, dropped := catalog.Filter(decision.Labels)
	if len(dropped) > 0 {
		log.WithField("dropped", dropped).Warn("[Processor] ignoring labels outside the catalog")
	}

	record := &domain.ProcessedMessage{
		AccountID:     accountID,
		MessageID:     messageID,
		FromAddress:   msg.From,
		Subject:       msg.Subject,
		Slug:          analysis.Slug,
		Keywords:      analysis.Keywords,
		Summary:       analysis.Summary,
		LabelsApplied: labels,
		BypassedInbox: decision.BypassInbox,
		Reasoning:     decision.Reasoning,
		ProcessedAt:   p.now().UTC(),
	}
	if err := p.messages.Create(ctx, record); err != nil {
		if errors.Is(err, out.ErrDuplicate) {
			log.Info("[Processor] processed concurrently by another worker")
			metrics.Inc("triage.skipped")
			return nil
		}
		return apperr.DatabaseError("create processed message", err)
	}

	// record is durable; write-back failures are not retried
	if err := p.applier.Apply(ctx, provider, accountID, messageID, labels, decision.BypassInbox); err != nil {
		log.WithError(err).Error("[Processor] write-back failed")
		metrics.Inc("triage.writeback_failed")
	}

	if err := p.senders.Record(ctx, accountID, msg.From, analysis.Slug, record.ProcessedAt); err != nil {
		log.WithError(err).Warn("[Processor] failed to record sender history")
	}

	metrics.Inc("triage.processed")
	metrics.Since("triage.process", start)
	log.WithDuration(time.Since(start)).Info("[Processor] %s → %s labels=%v archived=%v", msg.From, analysis.Slug, labels, decision.BypassInbox)
	return nil
}

func (p *Processor) override(ctx context.Context, accountID int64, promptType domain.PromptType) (string, error) {
	prompt, err := p.prompts.GetActive(ctx, accountID, promptType)
	if err != nil {
		return "", apperr.DatabaseError("get prompt override", err)
	}
	if prompt == nil {
		return "", nil
	}
	return prompt.Content, nil
}
