package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/pkg/cache"
)

func TestProtectorBoundsConcurrency(t *testing.T) {
	p := NewProtector(&Config{MaxConcurrent: 1, RequestsPerSecond: 0})

	release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("second Acquire should block until the deadline")
	}

	release()
	release2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	if !d.First(ctx, "push:7:100") {
		t.Error("first sighting should pass")
	}
	if d.First(ctx, "push:7:100") {
		t.Error("repeat should be dropped")
	}
	if !d.First(ctx, "push:7:101") {
		t.Error("different key should pass")
	}
}
