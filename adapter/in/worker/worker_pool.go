package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/adapter/out/messaging"
	"github.com/denwilliams/gmail-triage-assistant/pkg/metrics"
)

// JobHandler runs a decoded job.
type JobHandler interface {
	Handle(ctx context.Context, env *messaging.Envelope) error
}

// Settler acknowledges or dead-letters a finished delivery.
type Settler interface {
	Settle(ctx context.Context, d *messaging.Delivery, err error)
}

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers        int           // 워커 수
	WorkerChanSize int           // 워커 채널 버퍼 크기
	JobTimeout     time.Duration // 작업 타임아웃
}

// Pool runs deliveries on a go-pkgz/pool worker group.
type Pool struct {
	handler JobHandler
	settler Settler
	config  PoolConfig
	metrics *metrics.Registry
	log     zerolog.Logger

	// submitMu serializes Submit; mu guards group.
	submitMu sync.Mutex
	mu       sync.Mutex
	group    *pool.WorkerGroup[*messaging.Delivery]
	cancel   context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

func NewPool(handler JobHandler, settler Settler, cfg PoolConfig, reg *metrics.Registry, log zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.WorkerChanSize <= 0 {
		cfg.WorkerChanSize = cfg.Workers
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if reg == nil {
		reg = metrics.Global()
	}
	return &Pool{
		handler: handler,
		settler: settler,
		config:  cfg,
		metrics: reg,
		log:     log.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the workers. They outlive the caller's context so that
// in-flight jobs can finish during Stop.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return errors.New("pool already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.group = pool.New[*messaging.Delivery](p.config.Workers, pool.WorkerFunc[*messaging.Delivery](p.process)).
		WithBatchSize(1).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()
	if err := p.group.Go(ctx); err != nil {
		cancel()
		p.group = nil
		return err
	}

	p.log.Info().Int("workers", p.config.Workers).Dur("job_timeout", p.config.JobTimeout).Msg("worker pool started")
	return nil
}

// Submit queues a delivery, blocking while every worker is busy.
// Deliveries arriving after Stop stay pending in the stream.
func (p *Pool) Submit(_ context.Context, d *messaging.Delivery) {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	p.mu.Lock()
	group := p.group
	p.mu.Unlock()
	if group == nil {
		return
	}
	group.Submit(d)
}

// Stop waits for in-flight jobs, bounded by ctx.
func (p *Pool) Stop(ctx context.Context) {
	p.submitMu.Lock()
	p.mu.Lock()
	group, cancel := p.group, p.cancel
	p.group = nil
	p.mu.Unlock()
	p.submitMu.Unlock()
	if group == nil {
		return
	}

	if err := group.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn().Err(err).Msg("error closing worker pool")
	}
	cancel()
	p.log.Info().
		Int64("processed", p.processed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("worker pool stopped")
}

// process runs one job with the configured timeout and settles it.
func (p *Pool) process(ctx context.Context, d *messaging.Delivery) error {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	err := p.handler.Handle(jobCtx, d.Envelope)
	cancel()

	p.metrics.Since("job."+d.Envelope.Type, start)
	if err != nil {
		p.failed.Add(1)
		p.metrics.Inc("job." + d.Envelope.Type + ".failed")
		p.log.Error().
			Err(err).
			Str("job_id", d.Envelope.ID).
			Str("job_type", d.Envelope.Type).
			Int64("attempts", d.Attempts).
			Msg("job processing failed")
	} else {
		p.processed.Add(1)
	}

	p.settler.Settle(ctx, d, err)
	return nil
}

// Counts returns processed and failed totals.
func (p *Pool) Counts() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}
