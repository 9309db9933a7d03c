package invalidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/threadwatch/internal/services/watcher/domain"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
	"github.com/louisbranch/threadwatch/internal/services/watcher/upstream"
)

// DefaultCacheTTL bounds how far back catch-up ever looks.
const DefaultCacheTTL = 7 * 24 * time.Hour

// CatchUpConfig configures the catch-up cursor watcher.
type CatchUpConfig struct {
	Categories []string
	CacheTTL   time.Duration
	// Now is the clock; nil uses time.Now.
	Now  func() time.Time
	Logf Logf
}

// CatchUpWatcher walks each category's latest listing back to the persisted
// cursor and forces a refetch of every thread seen on the way.
type CatchUpWatcher struct {
	store      storage.CacheStore
	cursor     *storage.Cursor
	client     LatestLister
	categories []string
	ttl        time.Duration
	now        func() time.Time
	logf       Logf
}

// NewCatchUpWatcher builds a catch-up watcher whose cursor lives in the
// scalar store behind cursor.
func NewCatchUpWatcher(store storage.CacheStore, cursor *storage.Cursor, client LatestLister, cfg CatchUpConfig) *CatchUpWatcher {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CatchUpWatcher{
		store:      store,
		cursor:     cursor,
		client:     client,
		categories: normalizeCategories(cfg.Categories),
		ttl:        ttl,
		now:        now,
		logf:       normalizeLogf(cfg.Logf),
	}
}

// Name returns the watcher name.
func (w *CatchUpWatcher) Name() string {
	return NameCatchUp
}

// Tick drains every category back to the cursor. The cursor advances to the
// tick start only after every category completes.
func (w *CatchUpWatcher) Tick(ctx context.Context) (TickResult, error) {
	if w == nil || w.store == nil || w.cursor == nil || w.client == nil {
		return TickResult{}, errors.New("catch up watcher is not configured")
	}

	startedAt := w.now().UTC()
	stored, found, err := w.cursor.Get(ctx)
	if err != nil {
		return TickResult{}, err
	}
	since := domain.EffectiveCursor(stored, found, startedAt, w.ttl)

	var result TickResult
	for _, category := range w.categories {
		if err := w.drainCategory(ctx, category, startedAt, since, &result); err != nil {
			return result, err
		}
	}

	if err := w.cursor.Advance(ctx, startedAt); err != nil {
		return result, err
	}
	w.logf("catch up: invalidated %d threads across %d pages since %s",
		result.Invalidated, result.Requests, since.Format(time.RFC3339))
	return result, nil
}

func (w *CatchUpWatcher) drainCategory(ctx context.Context, category string, startedAt, since time.Time, result *TickResult) error {
	deletes := w.store.Pipeline()
	for page := 1; ; page++ {
		body, err := w.client.Latest(ctx, category, page)
		result.Requests++
		if err != nil {
			return fmt.Errorf("fetch latest %s page %d: %w", category, page, err)
		}
		items, err := upstream.DecodeLatest(body)
		if err != nil {
			return fmt.Errorf("decode latest %s page %d: %w", category, page, err)
		}
		if len(items) == 0 {
			break
		}
		if !queueRecent(deletes, items, startedAt, since) {
			break
		}
	}

	result.Queued += deletes.Len()
	deleted, err := deletes.Exec(ctx)
	if err != nil {
		return fmt.Errorf("invalidate %s threads: %w", category, err)
	}
	result.Invalidated += countAffected(deleted)
	return nil
}

// queueRecent queues items until one is unparsable or older than since. It
// reports whether the next page may still hold recent items.
func queueRecent(deletes storage.Pipeline, items []upstream.LatestItem, startedAt, since time.Time) bool {
	for _, item := range items {
		age, ok := domain.ParseRelativeAge(item.Date)
		if !ok {
			return false
		}
		if startedAt.Add(-age).Before(since) {
			return false
		}
		deletes.DeleteFields(domain.ThreadKey(item.ThreadID), domain.FieldLastCached)
	}
	return true
}
