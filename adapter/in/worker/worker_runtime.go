package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/adapter/out/messaging"
)

// Runtime ties the stream consumer, worker pool and scheduler together.
type Runtime struct {
	consumer  *messaging.Consumer
	pool      *Pool
	scheduler *Scheduler
	drain     time.Duration
	log       zerolog.Logger
}

// NewRuntime creates a runtime. scheduler may be nil when sweeps are disabled.
func NewRuntime(consumer *messaging.Consumer, pool *Pool, scheduler *Scheduler, drain time.Duration, log zerolog.Logger) *Runtime {
	if drain <= 0 {
		drain = 30 * time.Second
	}
	return &Runtime{
		consumer:  consumer,
		pool:      pool,
		scheduler: scheduler,
		drain:     drain,
		log:       log.With().Str("component", "runtime").Logger(),
	}
}

// Run blocks until ctx is done, then drains in-flight jobs.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.pool.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	if r.scheduler != nil {
		go func() {
			defer close(done)
			r.scheduler.Run(ctx)
		}()
	} else {
		close(done)
	}

	err := r.consumer.Run(ctx, r.pool.Submit)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	r.log.Info().Dur("drain", r.drain).Msg("shutting down worker runtime")
	stopCtx, cancel := context.WithTimeout(context.Background(), r.drain)
	defer cancel()
	r.pool.Stop(stopCtx)
	<-done
	return err
}
