// Package wrapup writes the morning and evening digests of processed mail.
package wrapup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

const maxListedEmails = 100

const defaultWrapupPrompt = `You are an AI assistant creating an email processing summary report. Review the emails and provide a concise wrapup including:
1. Total number of emails processed
2. Most common senders and types
3. Most interesting or important emails (based on subject and sender) and why
4. Labels applied summary
5. Any notable patterns or important emails
6. Quick overview of what was archived vs kept in inbox

Keep it brief and actionable - this is a daily digest for quick review.`

type Service struct {
	reports   out.WrapupRepository
	messages  out.ProcessedMessageRepository
	prompts   out.PromptRepository
	generator out.TextGenerator
	loc       *time.Location
}

var _ in.WrapupService = (*Service)(nil)

func NewService(reports out.WrapupRepository, messages out.ProcessedMessageRepository, prompts out.PromptRepository, generator out.TextGenerator, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		reports:   reports,
		messages:  messages,
		prompts:   prompts,
		generator: generator,
		loc:       loc,
	}
}

// Generate stores a digest of the kind's window ending at now. Nothing is
// stored when the window is empty.
func (s *Service) Generate(ctx context.Context, accountID int64, kind domain.WrapupKind, now time.Time) (*domain.WrapupReport, error) {
	log := logger.WithAccount(accountID).WithField("kind", string(kind))
	window := kind.Window(now, s.loc)

	msgs, err := s.messages.ListBetween(ctx, accountID, window.Start, window.End)
	if err != nil {
		return nil, apperr.DatabaseError("list processed messages", err)
	}
	if len(msgs) == 0 {
		log.Info("[WrapupService.Generate] no emails in %s, skipping", window)
		return nil, nil
	}

	system := defaultWrapupPrompt
	override, err := s.prompts.GetActive(ctx, accountID, domain.PromptWrapupReport)
	if err != nil {
		return nil, apperr.DatabaseError("get prompt override", err)
	}
	if override != nil && override.Content != "" {
		system = override.Content
	}

	content, err := s.generator.Generate(ctx, system, userPrompt(kind, msgs))
	if err != nil {
		return nil, err
	}

	report := &domain.WrapupReport{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        kind,
		EmailCount:  len(msgs),
		Content:     content,
		WindowStart: window.Start.UTC(),
		WindowEnd:   window.End.UTC(),
		GeneratedAt: now.UTC(),
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, apperr.DatabaseError("create wrapup report", err)
	}

	log.Info("[WrapupService.Generate] %s wrapup created (%d emails)", kind, len(msgs))
	return report, nil
}

func (s *Service) ListRecent(ctx context.Context, accountID int64, limit int) ([]*domain.WrapupReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	reports, err := s.reports.ListRecent(ctx, accountID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list wrapup reports", err)
	}
	return reports, nil
}

func userPrompt(kind domain.WrapupKind, msgs []*domain.ProcessedMessage) string {
	lines := make([]string, 0, min(len(msgs), maxListedEmails)+1)
	for i, m := range msgs {
		if i >= maxListedEmails {
			lines = append(lines, fmt.Sprintf("... and %d more emails", len(msgs)-maxListedEmails))
			break
		}
		line := fmt.Sprintf("- %s: %s | Labels: %s", m.FromAddress, m.Subject, quoteList(m.LabelsApplied))
		if m.BypassedInbox {
			line += " [ARCHIVED]"
		}
		lines = append(lines, line)
	}

	return fmt.Sprintf("Create a %s wrapup report for these %d emails processed %s:\n\n%s\n\nProvide a brief, scannable summary.",
		kind, len(msgs), kind.Timeframe(), strings.Join(lines, "\n"))
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
