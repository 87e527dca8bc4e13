package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

const defaultMaxLen = 100000

// RedisProducer implements out.JobPublisher using Redis Streams.
type RedisProducer struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisProducer creates a producer writing to stream, trimmed to about
// maxLen entries. maxLen <= 0 uses the default.
func NewRedisProducer(client redis.Cmdable, stream string, maxLen int64) *RedisProducer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisProducer{client: client, stream: stream, maxLen: maxLen}
}

// EnqueueTriage publishes one triage job per message id in a single pipeline.
func (p *RedisProducer) EnqueueTriage(ctx context.Context, accountID int64, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	envs := make([]*Envelope, 0, len(messageIDs))
	for _, id := range messageIDs {
		env, err := NewEnvelope(JobTriageMessage, TriagePayload{AccountID: accountID, MessageID: id}, PriorityNormal)
		if err != nil {
			return err
		}
		envs = append(envs, env)
	}
	return p.publish(ctx, envs...)
}

func (p *RedisProducer) PublishPoll(ctx context.Context, accountID int64, historyID uint64) error {
	env, err := NewEnvelope(JobAccountPoll, PollPayload{AccountID: accountID, HistoryID: historyID}, PriorityHigh)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

func (p *RedisProducer) PublishMemoryBuild(ctx context.Context, accountID int64, tier domain.Tier) error {
	env, err := NewEnvelope(JobMemoryBuild, MemoryBuildPayload{AccountID: accountID, Tier: tier}, PriorityLow)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

func (p *RedisProducer) PublishWrapup(ctx context.Context, accountID int64, kind domain.WrapupKind) error {
	env, err := NewEnvelope(JobWrapupGenerate, WrapupPayload{AccountID: accountID, Kind: kind}, PriorityLow)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

// publish XADDs each envelope as {"data": json}.
func (p *RedisProducer) publish(ctx context.Context, envs ...*Envelope) error {
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, env := range envs {
			data, err := json.Marshal(env)
			if err != nil {
				return fmt.Errorf("failed to marshal job: %w", err)
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: p.stream,
				MaxLen: p.maxLen,
				Approx: true,
				ID:     "*",
				Values: map[string]interface{}{"data": string(data)},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.stream, err)
	}
	return nil
}

var _ out.JobPublisher = (*RedisProducer)(nil)
