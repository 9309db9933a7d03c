package invalidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/threadwatch/internal/services/watcher/domain"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
	"github.com/louisbranch/threadwatch/internal/services/watcher/upstream"
)

// UpdateListWatcher compares the first page of each category's latest
// listing against cached versions and invalidates mismatches.
type UpdateListWatcher struct {
	store      storage.CacheStore
	client     LatestLister
	categories []string
	logf       Logf
}

// NewUpdateListWatcher builds an update-list watcher.
func NewUpdateListWatcher(store storage.CacheStore, client LatestLister, categories []string, logf Logf) *UpdateListWatcher {
	return &UpdateListWatcher{
		store:      store,
		client:     client,
		categories: normalizeCategories(categories),
		logf:       normalizeLogf(logf),
	}
}

// Name returns the watcher name.
func (w *UpdateListWatcher) Name() string {
	return NameUpdates
}

// Tick runs one pass. Any category failure aborts the whole pass before the
// queued deletes are written.
func (w *UpdateListWatcher) Tick(ctx context.Context) (TickResult, error) {
	if w == nil || w.store == nil || w.client == nil {
		return TickResult{}, errors.New("update list watcher is not configured")
	}

	var result TickResult
	deletes := w.store.Pipeline()
	queued := make(map[string]struct{})
	for _, category := range w.categories {
		items, err := w.latest(ctx, category)
		result.Requests++
		if err != nil {
			return result, err
		}
		if len(items) == 0 {
			continue
		}

		reads := w.store.Pipeline()
		for _, item := range items {
			reads.GetField(domain.ThreadKey(item.ThreadID), domain.FieldVersion)
		}
		cached, err := reads.Exec(ctx)
		if err != nil {
			return result, fmt.Errorf("read cached versions for %s: %w", category, err)
		}

		for i, item := range items {
			key := domain.ThreadKey(item.ThreadID)
			if _, ok := queued[key]; ok {
				continue
			}
			if !domain.IsStale(cached[i].Value, cached[i].Found, item.Version) {
				continue
			}
			queued[key] = struct{}{}
			deletes.DeleteFields(key, domain.InvalidationFields()...)
		}
	}

	result.Queued = deletes.Len()
	deleted, err := deletes.Exec(ctx)
	if err != nil {
		return result, fmt.Errorf("invalidate threads: %w", err)
	}
	result.Invalidated = countAffected(deleted)
	w.logf("update list: invalidated %d threads (%d queued)", result.Invalidated, result.Queued)
	return result, nil
}

func (w *UpdateListWatcher) latest(ctx context.Context, category string) ([]upstream.LatestItem, error) {
	body, err := w.client.Latest(ctx, category, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch latest %s: %w", category, err)
	}
	items, err := upstream.DecodeLatest(body)
	if err != nil {
		return nil, fmt.Errorf("decode latest %s: %w", category, err)
	}
	return items, nil
}
