package triage

import (
	"context"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

// PollResult is what one poll observed. Cursor is the position the caller
// should store once the ids are safely enqueued.
type PollResult struct {
	MessageIDs []string
	Cursor     uint64
	// Baseline is set when the cursor was (re)established without listing.
	Baseline bool
}

// Detector finds inbox additions since an account's cursor.
type Detector struct {
	providers out.MailProviderFactory
}

func NewDetector(providers out.MailProviderFactory) *Detector {
	return &Detector{providers: providers}
}

// Poll never fails. Provider errors yield no ids and the account's current
// cursor, so the next scheduled poll retries from the same place.
func (d *Detector) Poll(ctx context.Context, account *domain.Account) PollResult {
	log := logger.WithContext(ctx).WithAccount(account.ID)
	unchanged := PollResult{Cursor: account.Cursor()}

	provider, err := d.providers.ForAccount(ctx, account)
	if err != nil {
		log.WithError(err).Warn("[Detector.Poll] provider unavailable")
		return unchanged
	}

	cursor := account.Cursor()
	if cursor == 0 {
		return d.baseline(ctx, provider, unchanged, log)
	}

	ids, newCursor, err := provider.ListNewMessageIDs(ctx, cursor)
	if err != nil {
		if apperr.IsSkip(err) {
			log.WithError(err).Warn("[Detector.Poll] cursor %d expired, re-baselining", cursor)
			return d.baseline(ctx, provider, unchanged, log)
		}
		log.WithError(err).Warn("[Detector.Poll] history list failed")
		return unchanged
	}

	if newCursor < cursor {
		newCursor = cursor
	}
	return PollResult{MessageIDs: ids, Cursor: newCursor}
}

func (d *Detector) baseline(ctx context.Context, provider out.MailProvider, fallback PollResult, log *logger.Logger) PollResult {
	current, err := provider.CurrentCursor(ctx)
	if err != nil {
		log.WithError(err).Warn("[Detector.Poll] failed to read current cursor")
		return fallback
	}
	log.Info("[Detector.Poll] baseline cursor set to %d", current)
	return PollResult{Cursor: current, Baseline: true}
}
