// Package ratelimit guards outbound API calls.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// =============================================================================
// API Protection Layer
// 구조: Semaphore → Rate Limiter → API
// =============================================================================

// Config holds rate limiter configuration.
type Config struct {
	// Semaphore: 동시 요청 제한
	MaxConcurrent int

	// Rate Limiter: API 호출 속도 제한
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:     8,
		RequestsPerSecond: 2,
		BurstSize:         4,
	}
}

// Protector bounds concurrency and call rate for one upstream API.
type Protector struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
}

// NewProtector creates a protector. A non-positive rate disables rate limiting.
func NewProtector(config *Config) *Protector {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	limit := rate.Limit(config.RequestsPerSecond)
	if config.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &Protector{
		semaphore: make(chan struct{}, config.MaxConcurrent),
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Acquire blocks until a slot and a token are available. The returned
// release function must be called once the call completes.
func (p *Protector) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := p.limiter.Wait(ctx); err != nil {
		<-p.semaphore
		return nil, err
	}
	return func() { <-p.semaphore }, nil
}

// =============================================================================
// Debouncer - 중복 요청 방지
// =============================================================================

// Debouncer drops repeats of the same key within a time window.
type Debouncer struct {
	cache    out.Cache
	duration time.Duration
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(cache out.Cache, duration time.Duration) *Debouncer {
	return &Debouncer{cache: cache, duration: duration}
}

// First marks key and reports whether this is its first sighting in the
// window. Cache errors let the request through.
func (d *Debouncer) First(ctx context.Context, key string) bool {
	ok, err := d.cache.SetNX(ctx, "debounce:"+key, "1", d.duration)
	if err != nil {
		return true
	}
	return ok
}
