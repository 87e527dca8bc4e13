package bootstrap

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/adapter/in/worker"
	"github.com/denwilliams/gmail-triage-assistant/adapter/out/messaging"
	"github.com/denwilliams/gmail-triage-assistant/config"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
	"github.com/denwilliams/gmail-triage-assistant/pkg/metrics"
)

const drainTimeout = 30 * time.Second

// NewZerolog returns the worker-side logger: console output in development,
// JSON lines otherwise.
func NewZerolog(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var zlog zerolog.Logger
	if cfg.IsDevelopment() {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		zlog = zerolog.New(os.Stdout)
	}
	return zlog.Level(level).With().Timestamp().Str("service", "gmail-triage").Str("worker_id", cfg.WorkerID).Logger()
}

// NewWorker assembles the queue consumer, the job pool and, when enabled,
// the clock scheduler with its sweeps.
func NewWorker(deps *Dependencies) (*worker.Runtime, error) {
	cfg := deps.Config
	publisher, err := deps.Publisher()
	if err != nil {
		return nil, err
	}
	zlog := NewZerolog(cfg)

	consumer := messaging.NewConsumer(deps.Redis, messaging.ConsumerConfig{
		Stream:          cfg.QueueStream,
		Group:           cfg.QueueGroup,
		Consumer:        cfg.WorkerID,
		Logger:          zlog,
		BatchSize:       cfg.QueueBatchSize,
		Block:           cfg.QueueBlock,
		PendingIdleTime: cfg.QueuePendingIdle,
		MaxRetries:      cfg.QueueMaxRetries,
	})

	dispatcher := worker.NewDispatcher(deps.Triage, deps.Memory, deps.Wrapup, zlog)
	pool := worker.NewPool(dispatcher, consumer, worker.PoolConfig{
		Workers:    cfg.WorkerConcurrency,
		JobTimeout: cfg.JobTimeout,
	}, metrics.Global(), zlog)

	var scheduler *worker.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = worker.NewScheduler(zlog)
		source := worker.NewAccountSource(deps.Accounts, cfg.SweepConcurrency, zlog)
		sweeps := worker.NewSweeps(source, publisher, deps.Auth, cfg.PubSubTopic, zlog)
		sweeps.Register(scheduler, cfg.PollInterval, deps.Location)
		logger.Info("Scheduler enabled (poll every %v, zone %s)", cfg.PollInterval, deps.Location)
	} else {
		logger.Info("Scheduler disabled; this worker only consumes the queue")
	}

	logger.Info("Worker configured: stream=%s group=%s workers=%d", cfg.QueueStream, cfg.QueueGroup, cfg.WorkerConcurrency)
	return worker.NewRuntime(consumer, pool, scheduler, drainTimeout, zlog), nil
}
