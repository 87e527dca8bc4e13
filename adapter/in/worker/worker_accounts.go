package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

const accountPageSize = 100

// AccountSource walks active accounts page by page.
type AccountSource struct {
	accounts    out.AccountRepository
	concurrency int
	pageSize    int
	log         zerolog.Logger
}

func NewAccountSource(accounts out.AccountRepository, concurrency int, log zerolog.Logger) *AccountSource {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &AccountSource{
		accounts:    accounts,
		concurrency: concurrency,
		pageSize:    accountPageSize,
		log:         log.With().Str("component", "account_sweep").Logger(),
	}
}

// Each runs fn for every active account on a bounded pool. A failing account
// is logged and does not stop the sweep. It returns how many accounts failed.
func (s *AccountSource) Each(ctx context.Context, sweep string, fn func(ctx context.Context, account *domain.Account) error) (int, error) {
	var failed atomic.Int64

	group := pool.New[*domain.Account](s.concurrency, pool.WorkerFunc[*domain.Account](func(ctx context.Context, account *domain.Account) error {
		if err := fn(ctx, account); err != nil {
			failed.Add(1)
			s.log.Error().Err(err).Str("sweep", sweep).Int64("account_id", account.ID).Msg("account sweep failed")
		}
		return nil
	})).WithBatchSize(1).WithContinueOnError()

	if err := group.Go(ctx); err != nil {
		return 0, fmt.Errorf("start %s sweep: %w", sweep, err)
	}

	var (
		afterID int64
		total   int
		listErr error
	)
	for ctx.Err() == nil {
		page, err := s.accounts.ListActive(ctx, afterID, s.pageSize)
		if err != nil {
			listErr = fmt.Errorf("list active accounts after %d: %w", afterID, err)
			break
		}
		for _, account := range page {
			group.Submit(account)
			afterID = account.ID
		}
		total += len(page)
		if len(page) < s.pageSize {
			break
		}
	}

	if err := group.Close(ctx); err != nil && listErr == nil && ctx.Err() == nil {
		listErr = err
	}

	s.log.Info().Str("sweep", sweep).Int("accounts", total).Int64("failed", failed.Load()).Msg("sweep finished")
	return int(failed.Load()), listErr
}
