package http

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
	"github.com/denwilliams/gmail-triage-assistant/pkg/metrics"
)

// PushEnvelope is the Pub/Sub push request body.
type PushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Notification is the Gmail change notice carried in message.data.
type Notification struct {
	EmailAddress string    `json:"emailAddress"`
	HistoryID    historyID `json:"historyId"`
}

// historyID accepts both numeric and quoted history ids.
type historyID uint64

func (h *historyID) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseUint(string(bytes.Trim(b, `"`)), 10, 64)
	if err != nil {
		return fmt.Errorf("historyId: %w", err)
	}
	*h = historyID(v)
	return nil
}

// ParsePush decodes a push body into the Gmail notification it carries.
func ParsePush(body []byte) (*Notification, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.BadRequest("invalid push envelope")
	}
	if env.Message.Data == "" {
		return nil, apperr.BadRequest("push message has no data")
	}

	decoded, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		// some publishers send URL-safe encoding
		if decoded, err = base64.URLEncoding.DecodeString(env.Message.Data); err != nil {
			return nil, apperr.BadRequest("push data is not base64")
		}
	}

	var n Notification
	if err := json.Unmarshal(decoded, &n); err != nil {
		return nil, apperr.BadRequest("invalid gmail notification")
	}
	if n.EmailAddress == "" {
		return nil, apperr.BadRequest("notification has no email address")
	}
	return &n, nil
}

// WebhookMetrics counts push outcomes; reported under "webhook" in /health.
type WebhookMetrics struct {
	Received   int64 `json:"received"`
	Queued     int64 `json:"queued"`
	Duplicates int64 `json:"duplicates"`
	Ignored    int64 `json:"ignored"`
	Errors     int64 `json:"errors"`
}

// WebhookHandler turns Gmail push notifications into poll jobs.
type WebhookHandler struct {
	token     string
	accounts  out.AccountRepository
	publisher out.JobPublisher
	dedupe    Deduper
	metrics   WebhookMetrics
}

// Deduper reports whether a key is seen for the first time.
type Deduper interface {
	First(ctx context.Context, key string) bool
}

func NewWebhookHandler(token string, accounts out.AccountRepository, publisher out.JobPublisher, dedupe Deduper) *WebhookHandler {
	return &WebhookHandler{
		token:     token,
		accounts:  accounts,
		publisher: publisher,
		dedupe:    dedupe,
	}
}

func (h *WebhookHandler) Register(app fiber.Router) {
	app.Post("/webhook/gmail", h.GmailWebhook)
}

func (h *WebhookHandler) GetMetrics() WebhookMetrics {
	return WebhookMetrics{
		Received:   atomic.LoadInt64(&h.metrics.Received),
		Queued:     atomic.LoadInt64(&h.metrics.Queued),
		Duplicates: atomic.LoadInt64(&h.metrics.Duplicates),
		Ignored:    atomic.LoadInt64(&h.metrics.Ignored),
		Errors:     atomic.LoadInt64(&h.metrics.Errors),
	}
}

// GmailWebhook answers 200 for every verified, well-formed push so Pub/Sub
// does not redeliver; missed work is picked up by the poll sweep.
func (h *WebhookHandler) GmailWebhook(c *fiber.Ctx) error {
	if !h.verify(c.Query("token")) {
		logger.Warn("gmail push: unauthorized token")
		return apperr.Unauthorized("invalid push token")
	}
	atomic.AddInt64(&h.metrics.Received, 1)

	n, err := ParsePush(c.Body())
	if err != nil {
		return err
	}

	log := logger.WithFields(map[string]any{
		"email":      n.EmailAddress,
		"history_id": uint64(n.HistoryID),
	})
	if err := h.enqueue(c.UserContext(), n); err != nil {
		atomic.AddInt64(&h.metrics.Errors, 1)
		metrics.Global().Inc("webhook.error")
		log.WithError(err).Error("gmail push: failed to queue poll")
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) verify(token string) bool {
	if h.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

func (h *WebhookHandler) enqueue(ctx context.Context, n *Notification) error {
	account, err := h.accounts.GetByEmail(ctx, n.EmailAddress)
	if errors.Is(err, out.ErrNotFound) {
		atomic.AddInt64(&h.metrics.Ignored, 1)
		logger.Warn("gmail push: no account for %s", n.EmailAddress)
		return nil
	}
	if err != nil {
		return err
	}
	if !account.IsActive {
		atomic.AddInt64(&h.metrics.Ignored, 1)
		logger.WithAccount(account.ID).Info("gmail push: account inactive, skipping")
		return nil
	}

	key := fmt.Sprintf("push:%d:%d", account.ID, uint64(n.HistoryID))
	if h.dedupe != nil && !h.dedupe.First(ctx, key) {
		atomic.AddInt64(&h.metrics.Duplicates, 1)
		metrics.Global().Inc("webhook.duplicate")
		return nil
	}

	if err := h.publisher.PublishPoll(ctx, account.ID, uint64(n.HistoryID)); err != nil {
		return err
	}
	atomic.AddInt64(&h.metrics.Queued, 1)
	metrics.Global().Inc("webhook.queued")
	return nil
}
