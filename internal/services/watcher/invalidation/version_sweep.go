package invalidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/threadwatch/internal/services/watcher/domain"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
	"github.com/louisbranch/threadwatch/internal/services/watcher/upstream"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of ids sent per bulk version check.
const DefaultBatchSize = 1000

// VersionSweepWatcher scans every cached thread and bulk-checks versions
// upstream in fixed-size batches.
type VersionSweepWatcher struct {
	store     storage.CacheStore
	client    VersionChecker
	batchSize int
	logf      Logf
}

// NewVersionSweepWatcher builds a version-sweep watcher. Non-positive batch
// sizes fall back to DefaultBatchSize.
func NewVersionSweepWatcher(store storage.CacheStore, client VersionChecker, batchSize int, logf Logf) *VersionSweepWatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &VersionSweepWatcher{
		store:     store,
		client:    client,
		batchSize: batchSize,
		logf:      normalizeLogf(logf),
	}
}

// Name returns the watcher name.
func (w *VersionSweepWatcher) Name() string {
	return NameVersions
}

// Tick runs one full sweep. Keys are streamed from the cache so only one
// batch of ids is held at a time.
func (w *VersionSweepWatcher) Tick(ctx context.Context) (TickResult, error) {
	if w == nil || w.store == nil || w.client == nil {
		return TickResult{}, errors.New("version sweep watcher is not configured")
	}

	var result TickResult
	deletes := w.store.Pipeline()
	queued := make(map[string]struct{})
	batch := make([]string, 0, w.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.checkBatch(ctx, batch, deletes, queued, &result)
		batch = make([]string, 0, w.batchSize)
		return err
	}

	for key, err := range w.store.ScanKeys(ctx, domain.ThreadKeyPattern, storage.KeyTypeHash) {
		if err != nil {
			return result, fmt.Errorf("scan thread keys: %w", err)
		}
		id, ok := domain.ThreadIDFromKey(key)
		if !ok {
			continue
		}
		batch = append(batch, id)
		if len(batch) < w.batchSize {
			continue
		}
		if err := flush(); err != nil {
			return result, err
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	result.Queued = deletes.Len()
	deleted, err := deletes.Exec(ctx)
	if err != nil {
		return result, fmt.Errorf("invalidate threads: %w", err)
	}
	result.Invalidated = countAffected(deleted)
	w.logf("version sweep: invalidated %d threads (%d queued, %d batches, %d skipped)",
		result.Invalidated, result.Queued, result.Requests, result.Skipped)
	return result, nil
}

// checkBatch reads cached versions and asks upstream for current ones
// concurrently, then queues invalidations for mismatches.
func (w *VersionSweepWatcher) checkBatch(
	ctx context.Context,
	ids []string,
	deletes storage.Pipeline,
	queued map[string]struct{},
	result *TickResult,
) error {
	var (
		cached   []storage.Result
		versions map[string]string
		notFound bool
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		reads := w.store.Pipeline()
		for _, id := range ids {
			reads.GetField(domain.ThreadKey(id), domain.FieldVersion)
		}
		results, err := reads.Exec(groupCtx)
		if err != nil {
			return fmt.Errorf("read cached versions: %w", err)
		}
		cached = results
		return nil
	})
	group.Go(func() error {
		body, err := w.client.CheckVersions(groupCtx, ids)
		if err != nil {
			return fmt.Errorf("check versions: %w", err)
		}
		decoded, err := upstream.DecodeVersions(body)
		if errors.Is(err, upstream.ErrThreadNotFound) {
			notFound = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode versions: %w", err)
		}
		versions = decoded
		return nil
	})
	result.Requests++
	if err := group.Wait(); err != nil {
		return err
	}
	if notFound {
		result.Skipped++
		w.logf("version sweep: skipped batch of %d threads: thread not found", len(ids))
		return nil
	}

	for i, id := range ids {
		key := domain.ThreadKey(id)
		if _, ok := queued[key]; ok {
			continue
		}
		upstreamVersion, ok := versions[id]
		if !ok {
			continue
		}
		if !domain.IsStale(cached[i].Value, cached[i].Found, upstreamVersion) {
			continue
		}
		queued[key] = struct{}{}
		deletes.DeleteFields(key, domain.InvalidationFields()...)
	}
	return nil
}
