package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

// Service implements in.TriageService.
type Service struct {
	*Processor
	detector  *Detector
	accounts  out.AccountRepository
	messages  out.ProcessedMessageRepository
	publisher out.JobPublisher
}

var _ in.TriageService = (*Service)(nil)

func NewService(processor *Processor, detector *Detector, accounts out.AccountRepository, messages out.ProcessedMessageRepository, publisher out.JobPublisher) *Service {
	return &Service{
		Processor: processor,
		detector:  detector,
		accounts:  accounts,
		messages:  messages,
		publisher: publisher,
	}
}

// Sync polls one account. New ids are enqueued before the cursor is stored,
// so a crash in between re-detects the batch instead of dropping it.
func (s *Service) Sync(ctx context.Context, accountID int64) (*in.SyncResult, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("account %d", accountID))
		}
		return nil, apperr.DatabaseError("get account", err)
	}

	result := &in.SyncResult{AccountID: accountID, Cursor: account.Cursor()}
	if !account.IsActive {
		return result, nil
	}

	poll := s.detector.Poll(ctx, account)
	result.Baseline = poll.Baseline

	if len(poll.MessageIDs) > 0 {
		if err := s.publisher.EnqueueTriage(ctx, accountID, poll.MessageIDs...); err != nil {
			return result, fmt.Errorf("enqueue %d messages: %w", len(poll.MessageIDs), err)
		}
		result.Enqueued = len(poll.MessageIDs)
	}

	if poll.Cursor == 0 {
		return result, nil
	}
	advanced, err := s.accounts.AdvanceCursor(ctx, accountID, poll.Cursor, s.now().UTC())
	if err != nil {
		return result, apperr.DatabaseError("advance cursor", err)
	}
	result.Advanced = advanced
	if advanced {
		result.Cursor = poll.Cursor
	}

	if result.Enqueued > 0 || advanced {
		logger.WithAccount(accountID).Info("[TriageService.Sync] enqueued=%d cursor=%d advanced=%v", result.Enqueued, result.Cursor, advanced)
	}
	return result, nil
}

func (s *Service) SetFeedback(ctx context.Context, accountID int64, messageID, feedback string) error {
	err := s.messages.UpdateFeedback(ctx, accountID, messageID, feedback)
	if errors.Is(err, out.ErrNotFound) {
		return apperr.NotFound("processed message " + messageID)
	}
	if err != nil {
		return apperr.DatabaseError("update feedback", err)
	}
	return nil
}

func (s *Service) ListProcessed(ctx context.Context, accountID int64, limit, offset int) ([]*domain.ProcessedMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := s.messages.ListRecent(ctx, accountID, limit, offset)
	if err != nil {
		return nil, apperr.DatabaseError("list processed messages", err)
	}
	return msgs, nil
}
