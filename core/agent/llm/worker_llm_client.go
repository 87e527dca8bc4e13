// Package llm runs the two model-backed triage stages and free-text
// generation for memories and wrapups.
package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/httputil"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
	"github.com/denwilliams/gmail-triage-assistant/pkg/metrics"
	"github.com/denwilliams/gmail-triage-assistant/pkg/ratelimit"
)

const (
	DefaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 10000
	memoryMaxTokens  = 20000
	providerName     = "openai"
)

// chatAPI is the part of *openai.Client the stages use.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api         chatAPI
	model       string
	maxTokens   int
	callTimeout time.Duration
	debug       bool
	protector   *ratelimit.Protector
	cb          *gobreaker.CircuitBreaker
	log         *logger.Logger
}

type ClientConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	MaxConcurrent     int
	CallTimeout       time.Duration
	DebugPrompts      bool
}

func NewClient(cfg ClientConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httputil.NewClient(httputil.OpenAIConfig())
	return newClient(openai.NewClientWithConfig(oc), cfg)
}

func newClient(api chatAPI, cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	cbSettings := gobreaker.Settings{
		Name:        "openai-api",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// 스키마 불일치는 서비스 장애가 아님
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.IsKind(err, apperr.CodeTransientProvider)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("breaker", name).Warn("circuit breaker state changed from %s to %s", from, to)
		},
	}

	return &Client{
		api:         api,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		callTimeout: cfg.CallTimeout,
		debug:       cfg.DebugPrompts,
		protector: ratelimit.NewProtector(&ratelimit.Config{
			MaxConcurrent:     cfg.MaxConcurrent,
			RequestsPerSecond: cfg.RequestsPerSecond,
			BurstSize:         cfg.Burst,
		}),
		cb:  gobreaker.NewCircuitBreaker(cbSettings),
		log: logger.WithField("component", "llm"),
	}
}

// BreakerState reports the OpenAI breaker for health output.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func (c *Client) logPrompts(label, systemPrompt, userPrompt string) {
	if !c.debug {
		return
	}
	c.log.WithField("stage", label).Debug("=== %s ===\nSYSTEM:\n%s\n\nUSER:\n%s\n=== END %s ===", label, systemPrompt, userPrompt, label)
}

// complete sends one chat request through the limiter and breaker. label names
// the latency series.
func (c *Client) complete(ctx context.Context, label string, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	release, err := c.protector.Acquire(ctx)
	if err != nil {
		return openai.ChatCompletionResponse{}, apperr.TransientProvider(providerName, err)
	}
	defer release()

	start := time.Now()
	defer metrics.Since("llm."+label, start)

	result, err := c.cb.Execute(func() (any, error) {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, classifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return openai.ChatCompletionResponse{}, apperr.TransientProvider(providerName, err)
		}
		return openai.ChatCompletionResponse{}, err
	}
	return result.(openai.ChatCompletionResponse), nil
}

// Generate returns free text for the memory and wrapup prompts.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.logPrompts("Generate", systemPrompt, userPrompt)

	resp, err := c.complete(ctx, "generate", openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens: memoryMaxTokens,
	})
	if err != nil {
		return "", err
	}

	content, err := messageContent("text", resp)
	if err != nil {
		return "", err
	}
	return content, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.TransientProvider(providerName, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, err)
	}
	// connection level failures
	return apperr.TransientProvider(providerName, err)
}

func statusError(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests, status >= 500, status == 0:
		return apperr.TransientProvider(providerName, err)
	case status == http.StatusUnauthorized:
		return apperr.ConfigError("openai rejected the api key").WithDetail("cause", err.Error())
	}
	return apperr.ExternalError(providerName, err)
}
