// Package messaging provides the Redis Streams work queue.
package messaging

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

// Priority levels for job scheduling.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// JobType represents the type of a job.
type JobType = string

const (
	JobTriageMessage  JobType = "triage.message"
	JobAccountPoll    JobType = "account.poll"
	JobMemoryBuild    JobType = "memory.build"
	JobWrapupGenerate JobType = "wrapup.generate"
)

// Envelope is the stream message body.
type Envelope struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Priority  Priority        `json:"priority"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`
}

type TriagePayload struct {
	AccountID int64  `json:"account_id"`
	MessageID string `json:"message_id"`
}

// PollPayload asks for a history sync. HistoryID is the push hint, zero when
// the poll came from a sweep.
type PollPayload struct {
	AccountID int64  `json:"account_id"`
	HistoryID uint64 `json:"history_id,omitempty"`
}

type MemoryBuildPayload struct {
	AccountID int64       `json:"account_id"`
	Tier      domain.Tier `json:"tier"`
}

type WrapupPayload struct {
	AccountID int64             `json:"account_id"`
	Kind      domain.WrapupKind `json:"kind"`
}

// NewEnvelope wraps payload under a fresh id.
func NewEnvelope(jobType JobType, payload any, priority Priority) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   data,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodeEnvelope parses a stream "data" field.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("invalid envelope: missing type")
	}
	return &env, nil
}

// ParsePayload decodes the envelope payload into T.
func ParsePayload[T any](env *Envelope) (*T, error) {
	var payload T
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%s: invalid payload: %w", env.Type, err)
	}
	return &payload, nil
}
