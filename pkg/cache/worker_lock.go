package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// Lock is a best-effort mutual exclusion key with a lease.
type Lock struct {
	cache out.Cache
	key   string
	token string
}

// TryLock takes key for ttl. ok is false when someone else holds it.
func TryLock(ctx context.Context, c out.Cache, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, "lock:"+key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{cache: c, key: "lock:" + key, token: token}, true, nil
}

// Release drops the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	current, err := l.cache.Get(ctx, l.key)
	if err != nil {
		return nil
	}
	if current != l.token {
		return nil
	}
	return l.cache.Delete(ctx, l.key)
}
