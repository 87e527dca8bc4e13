package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

const labelIDTTL = 24 * time.Hour

// Applier writes a decision back to the mailbox.
type Applier struct {
	cache out.Cache
}

// NewApplier creates an applier. cache may be nil.
func NewApplier(cache out.Cache) *Applier {
	return &Applier{cache: cache}
}

// Apply ensures every label exists, applies them in one call and archives
// when asked.
func (a *Applier) Apply(ctx context.Context, provider out.MailProvider, accountID int64, messageID string, labels []string, bypassInbox bool) error {
	if len(labels) > 0 {
		ids, err := a.resolve(ctx, provider, accountID, labels)
		if err != nil {
			return err
		}
		if err := provider.ApplyLabels(ctx, messageID, ids); err != nil {
			a.forget(ctx, accountID, labels)
			return fmt.Errorf("apply labels: %w", err)
		}
	}

	if bypassInbox {
		if err := provider.Archive(ctx, messageID); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

// resolve maps label names to provider ids, creating missing labels.
func (a *Applier) resolve(ctx context.Context, provider out.MailProvider, accountID int64, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	var existing map[string]string

	for _, name := range names {
		key := labelKey(accountID, name)
		if id := a.cached(ctx, key); id != "" {
			ids = append(ids, id)
			continue
		}

		if existing == nil {
			list, err := provider.ListLabels(ctx)
			if err != nil {
				return nil, fmt.Errorf("list labels: %w", err)
			}
			existing = make(map[string]string, len(list))
			for _, l := range list {
				existing[strings.ToLower(l.Name)] = l.ID
			}
		}

		id, ok := existing[strings.ToLower(name)]
		if !ok {
			created, err := provider.CreateLabel(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("create label %q: %w", name, err)
			}
			logger.WithAccount(accountID).Info("[Applier] created label %q (%s)", name, created.ID)
			id = created.ID
			existing[strings.ToLower(name)] = id
		}

		a.store(ctx, key, id)
		ids = append(ids, id)
	}
	return ids, nil
}

func (a *Applier) cached(ctx context.Context, key string) string {
	if a.cache == nil {
		return ""
	}
	id, err := a.cache.Get(ctx, key)
	if err != nil {
		return ""
	}
	return id
}

func (a *Applier) store(ctx context.Context, key, id string) {
	if a.cache == nil {
		return
	}
	_ = a.cache.Set(ctx, key, id, labelIDTTL)
}

// forget drops cached ids so a label deleted on the provider is re-created.
func (a *Applier) forget(ctx context.Context, accountID int64, names []string) {
	if a.cache == nil {
		return
	}
	for _, name := range names {
		_ = a.cache.Delete(ctx, labelKey(accountID, name))
	}
}

func labelKey(accountID int64, name string) string {
	return fmt.Sprintf("labelid:%d:%s", accountID, strings.ToLower(name))
}
