package invalidation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/louisbranch/threadwatch/internal/services/watcher/domain"
	"github.com/louisbranch/threadwatch/internal/services/watcher/upstream"
)

func TestVersionSweepBatchesEveryCachedThreadOnce(t *testing.T) {
	cases := []struct {
		name      string
		threads   int
		batchSize int
		want      int
	}{
		{name: "empty cache", threads: 0, batchSize: 3, want: 0},
		{name: "exact multiple", threads: 6, batchSize: 3, want: 2},
		{name: "remainder", threads: 7, batchSize: 3, want: 3},
		{name: "single partial", threads: 2, batchSize: 1000, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeCacheStore()
			for i := range tc.threads {
				store.seed(fmt.Sprintf("%d", 100+i), "1.0")
			}
			checker := &fakeVersionChecker{respond: func(ids []string) ([]byte, error) {
				versions := make(map[string]string, len(ids))
				for _, id := range ids {
					versions[id] = "1.0"
				}
				return versionsBody(versions), nil
			}}

			watcher := NewVersionSweepWatcher(store, checker, tc.batchSize, nil)
			result, err := watcher.Tick(context.Background())
			if err != nil {
				t.Fatalf("tick: %v", err)
			}
			if len(checker.batches) != tc.want || result.Requests != tc.want {
				t.Fatalf("batches = %d requests = %d, want %d", len(checker.batches), result.Requests, tc.want)
			}
			seen := make(map[string]int)
			for _, batch := range checker.batches {
				if len(batch) > tc.batchSize {
					t.Fatalf("batch size = %d, exceeds %d", len(batch), tc.batchSize)
				}
				for _, id := range batch {
					seen[id]++
				}
			}
			if len(seen) != tc.threads {
				t.Fatalf("ids seen = %d, want %d", len(seen), tc.threads)
			}
			for id, count := range seen {
				if count != 1 {
					t.Fatalf("id %s appeared %d times", id, count)
				}
			}
			if result.Invalidated != 0 {
				t.Fatalf("invalidated = %d, want 0", result.Invalidated)
			}
		})
	}
}

func TestVersionSweepInvalidatesOnlyUsableMismatches(t *testing.T) {
	store := newFakeCacheStore()
	store.seed("1", "1.0")
	store.seed("2", "2.0")
	store.seed("3", "3.0")
	store.seed("4", "4.0")
	store.seed("5", "5.0")
	if err := store.SetFields(context.Background(), "session:1", map[string]string{"version": "x"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	checker := &fakeVersionChecker{respond: func([]string) ([]byte, error) {
		return versionsBody(map[string]string{
			"1": "1.1",
			"2": "Unknown",
			"3": "",
			"4": "4.0",
		}), nil
	}}

	watcher := NewVersionSweepWatcher(store, checker, 10, nil)
	result, err := watcher.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if result.Invalidated != 1 {
		t.Fatalf("invalidated = %d, want 1", result.Invalidated)
	}
	if _, ok := store.field(domain.ThreadKey("1"), domain.FieldVersion); ok {
		t.Fatal("thread 1 version still present")
	}
	for _, id := range []string{"2", "3", "4", "5"} {
		if _, ok := store.field(domain.ThreadKey(id), domain.FieldLastCached); !ok {
			t.Fatalf("thread %s invalidated unexpectedly", id)
		}
	}
	for _, id := range checker.batches[0] {
		if id == "session:1" {
			t.Fatalf("non-thread key %q sent upstream", id)
		}
	}
}

func TestVersionSweepSkipsThreadNotFoundBatch(t *testing.T) {
	store := newFakeCacheStore()
	for _, id := range []string{"10", "11", "12", "13", "14", "15"} {
		store.seed(id, "old")
	}
	checker := &fakeVersionChecker{respond: func(ids []string) ([]byte, error) {
		if ids[0] == "12" {
			return []byte(`{"status":"error","msg":"Thread not found"}`), nil
		}
		versions := make(map[string]string, len(ids))
		for _, id := range ids {
			versions[id] = "new"
		}
		return versionsBody(versions), nil
	}}
	logs := &logRecorder{}

	watcher := NewVersionSweepWatcher(store, checker, 2, logs.logf)
	result, err := watcher.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if result.Requests != 3 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want 3 requests and 1 skipped", result)
	}
	if result.Invalidated != 4 {
		t.Fatalf("invalidated = %d, want 4", result.Invalidated)
	}
	for _, id := range []string{"12", "13"} {
		if _, ok := store.field(domain.ThreadKey(id), domain.FieldVersion); !ok {
			t.Fatalf("skipped thread %s was invalidated", id)
		}
	}
	if !logs.contains("skipped batch of 2 threads") {
		t.Fatalf("logs = %v, want skip line", logs.lines)
	}
}

func TestVersionSweepOtherErrorsAbortTick(t *testing.T) {
	store := newFakeCacheStore()
	store.seed("1", "old")
	store.seed("2", "old")
	checker := &fakeVersionChecker{respond: func(ids []string) ([]byte, error) {
		if ids[0] == "2" {
			return []byte(`{"status":"error","msg":"Rate limit"}`), nil
		}
		return versionsBody(map[string]string{"1": "new"}), nil
	}}

	watcher := NewVersionSweepWatcher(store, checker, 1, nil)
	_, err := watcher.Tick(context.Background())
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if _, ok := store.field(domain.ThreadKey("1"), domain.FieldVersion); !ok {
		t.Fatal("aborted sweep still wrote invalidations")
	}
}

func TestVersionSweepScanErrorAbortsTick(t *testing.T) {
	store := newFakeCacheStore()
	store.scanErr = errors.New("connection refused")
	checker := &fakeVersionChecker{}

	watcher := NewVersionSweepWatcher(store, checker, 10, nil)
	if _, err := watcher.Tick(context.Background()); err == nil {
		t.Fatal("expected scan error")
	}
	if len(checker.batches) != 0 {
		t.Fatalf("batches = %d, want 0", len(checker.batches))
	}
}

func TestVersionSweepDefaultsBatchSize(t *testing.T) {
	watcher := NewVersionSweepWatcher(newFakeCacheStore(), &fakeVersionChecker{}, 0, nil)
	if watcher.batchSize != DefaultBatchSize {
		t.Fatalf("batch size = %d, want %d", watcher.batchSize, DefaultBatchSize)
	}
}
