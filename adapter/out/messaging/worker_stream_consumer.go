package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

// Delivery is one stream entry handed to a worker. Settle must be called
// exactly once when the work finishes.
type Delivery struct {
	Stream   string
	ID       string
	Envelope *Envelope
	// Attempts is the number of times the entry was delivered, 1 on first read.
	Attempts int64
}

// Dispatch receives deliveries. It may block to apply back-pressure.
type Dispatch func(ctx context.Context, d *Delivery)

// Consumer consumes messages from a Redis Stream consumer group.
type Consumer struct {
	client   redis.Cmdable
	stream   string
	group    string
	consumer string
	log      zerolog.Logger

	batchSize            int64
	block                time.Duration
	pendingCheckInterval time.Duration // Pending 메시지 체크 간격
	pendingIdleTime      time.Duration // 이 시간 이상 pending이면 재처리
	maxRetries           int64         // 최대 전달 횟수
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Logger   zerolog.Logger

	BatchSize            int
	Block                time.Duration
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// NewConsumer creates a new Consumer.
func NewConsumer(client redis.Cmdable, cfg ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		stream:               cfg.Stream,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		log:                  cfg.Logger.With().Str("component", "stream_consumer").Str("stream", cfg.Stream).Logger(),
		batchSize:            int64(cfg.BatchSize),
		block:                cfg.Block,
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxRetries:           int64(cfg.MaxRetries),
	}
	if c.batchSize <= 0 {
		c.batchSize = 10
	}
	if c.block <= 0 {
		c.block = 5 * time.Second
	}
	if c.pendingCheckInterval <= 0 {
		c.pendingCheckInterval = 30 * time.Second
	}
	if c.pendingIdleTime <= 0 {
		c.pendingIdleTime = 2 * time.Minute
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	return c
}

// Run reads new entries and reclaims stuck ones until ctx is done.
func (c *Consumer) Run(ctx context.Context, dispatch Dispatch) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Msg("starting consumer")

	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	go c.processPendingMessages(ctx, dispatch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    c.batchSize,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("error reading from stream")
			sleep(ctx, time.Second)
			continue
		}

		for _, s := range result {
			for _, msg := range s.Messages {
				c.deliver(ctx, msg, 1, dispatch)
			}
		}
	}
}

// EnsureGroup creates the consumer group and stream when missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}
	return nil
}

func (c *Consumer) deliver(ctx context.Context, msg redis.XMessage, attempts int64, dispatch Dispatch) {
	env, err := decodeMessage(msg)
	if err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("undecodable message, moving to DLQ")
		if derr := c.deadLetter(ctx, msg, err.Error()); derr != nil {
			c.log.Error().Err(derr).Str("id", msg.ID).Msg("error moving message to DLQ")
			return
		}
		c.client.XAck(ctx, c.stream, c.group, msg.ID)
		return
	}
	dispatch(ctx, &Delivery{Stream: c.stream, ID: msg.ID, Envelope: env, Attempts: attempts})
}

// Settle acknowledges a finished delivery. Failed jobs stay pending for
// reclaim until maxRetries deliveries; malformed jobs go straight to the
// dead-letter stream.
func (c *Consumer) Settle(ctx context.Context, d *Delivery, handleErr error) {
	log := c.log.With().Str("id", d.ID).Str("job_type", d.Envelope.Type).Int64("attempts", d.Attempts).Logger()

	switch {
	case handleErr == nil:
	case apperr.IsSkip(handleErr):
		log.Info().Err(handleErr).Msg("job subject gone, dropping")
	case !malformedJob(handleErr) && d.Attempts < c.maxRetries:
		log.Warn().Err(handleErr).Bool("retryable", apperr.IsRetryable(handleErr)).Msg("job failed, leaving pending for retry")
		return
	default:
		reason := handleErr.Error()
		log.Error().Err(handleErr).Msg("job failed permanently, moving to DLQ")
		if err := c.moveToDeadLetterQueue(ctx, d.ID, reason); err != nil {
			log.Error().Err(err).Msg("error moving message to DLQ")
			return
		}
	}

	if err := c.client.XAck(ctx, c.stream, c.group, d.ID).Err(); err != nil {
		log.Error().Err(err).Msg("error acknowledging message")
	}
}

// malformedJob reports payloads no redelivery can fix.
func malformedJob(err error) bool {
	return apperr.IsKind(err, apperr.CodeBadRequest) || apperr.IsKind(err, apperr.CodeInvalidInput)
}

// processPendingMessages periodically claims stuck pending messages.
func (c *Consumer) processPendingMessages(ctx context.Context, dispatch Dispatch) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimPending(ctx, dispatch)
		}
	}
}

func (c *Consumer) claimPending(ctx context.Context, dispatch Dispatch) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Idle:   c.pendingIdleTime,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Msg("error getting pending messages")
		}
		return
	}

	for _, p := range pending {
		if p.Idle < c.pendingIdleTime {
			continue
		}

		if p.RetryCount >= c.maxRetries {
			c.log.Warn().Str("id", p.ID).Int64("retries", p.RetryCount).Msg("message exceeded max retries, moving to DLQ")
			if err := c.moveToDeadLetterQueue(ctx, p.ID, "max retries exceeded"); err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ")
				continue
			}
			c.client.XAck(ctx, c.stream, c.group, p.ID)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.pendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
			continue
		}

		for _, msg := range claimed {
			c.log.Info().Str("id", msg.ID).Dur("idle", p.Idle).Int64("retries", p.RetryCount).Msg("reclaimed pending message")
			c.deliver(ctx, msg, p.RetryCount+1, dispatch)
		}
	}
}

// moveToDeadLetterQueue copies an entry to dlq:<stream>.
func (c *Consumer) moveToDeadLetterQueue(ctx context.Context, msgID, reason string) error {
	messages, err := c.client.XRange(ctx, c.stream, msgID, msgID).Result()
	if err != nil {
		return fmt.Errorf("failed to read message for DLQ: %w", err)
	}
	if len(messages) == 0 {
		// already trimmed away
		return nil
	}
	return c.deadLetter(ctx, messages[0], reason)
}

func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, reason string) error {
	values := map[string]interface{}{
		"original_stream": c.stream,
		"original_id":     msg.ID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        c.consumer,
		"group":           c.group,
		"reason":          reason,
	}
	for k, v := range msg.Values {
		values["original_"+k] = v
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: DeadLetterStream(c.stream), Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to add message to DLQ: %w", err)
	}
	return nil
}

// DeadLetterStream names the dead-letter stream for stream.
func DeadLetterStream(stream string) string {
	return "dlq:" + stream
}

func decodeMessage(msg redis.XMessage) (*Envelope, error) {
	data, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("invalid message format: missing data field")
	}
	s, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: data is not a string")
	}
	return DecodeEnvelope([]byte(s))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
