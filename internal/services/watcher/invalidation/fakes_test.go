package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/louisbranch/threadwatch/internal/services/watcher/domain"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
)

type fakeCacheStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	scalars map[string]string
	execs   int
	execErr error
	scanErr error
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{
		hashes:  make(map[string]map[string]string),
		scalars: make(map[string]string),
	}
}

func (s *fakeCacheStore) seed(id, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[domain.ThreadKey(id)] = map[string]string{
		domain.FieldVersion:    version,
		domain.FieldLastCached: "1700000000",
		"title":                "thread " + id,
	}
}

func (s *fakeCacheStore) field(key, field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.hashes[key][field]
	return value, ok
}

func (s *fakeCacheStore) GetScalar(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.scalars[key]
	return value, ok, nil
}

func (s *fakeCacheStore) SetScalar(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalars[key] = value
	return nil
}

func (s *fakeCacheStore) Pipeline() storage.Pipeline {
	return &fakePipeline{store: s}
}

func (s *fakeCacheStore) ScanKeys(_ context.Context, pattern, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.scanErr != nil {
			yield("", s.scanErr)
			return
		}
		s.mu.Lock()
		keys := make([]string, 0, len(s.hashes))
		for key := range s.hashes {
			if ok, _ := path.Match(pattern, key); ok {
				keys = append(keys, key)
			}
		}
		s.mu.Unlock()
		slices.Sort(keys)
		for _, key := range keys {
			if !yield(key, nil) {
				return
			}
		}
	}
}

func (s *fakeCacheStore) GetField(_ context.Context, key, field string) (string, bool, error) {
	value, ok := s.field(key, field)
	return value, ok, nil
}

func (s *fakeCacheStore) DeleteFields(_ context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(key, fields), nil
}

func (s *fakeCacheStore) deleteLocked(key string, fields []string) int64 {
	var deleted int64
	for _, field := range fields {
		if _, ok := s.hashes[key][field]; ok {
			delete(s.hashes[key], field)
			deleted++
		}
	}
	return deleted
}

func (s *fakeCacheStore) SetFields(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes[key] == nil {
		s.hashes[key] = make(map[string]string)
	}
	for field, value := range fields {
		s.hashes[key][field] = value
	}
	return nil
}

func (s *fakeCacheStore) Close() error {
	return nil
}

type fakePipelineOp struct {
	get    bool
	key    string
	fields []string
}

type fakePipeline struct {
	store *fakeCacheStore
	ops   []fakePipelineOp
}

func (p *fakePipeline) GetField(key, field string) {
	p.ops = append(p.ops, fakePipelineOp{get: true, key: key, fields: []string{field}})
}

func (p *fakePipeline) DeleteFields(key string, fields ...string) {
	p.ops = append(p.ops, fakePipelineOp{key: key, fields: fields})
}

func (p *fakePipeline) Len() int {
	return len(p.ops)
}

func (p *fakePipeline) Exec(context.Context) ([]storage.Result, error) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.execs++
	if p.store.execErr != nil {
		return nil, p.store.execErr
	}
	results := make([]storage.Result, len(p.ops))
	for i, op := range p.ops {
		if op.get {
			value, ok := p.store.hashes[op.key][op.fields[0]]
			results[i] = storage.Result{Value: value, Found: ok}
			continue
		}
		results[i] = storage.Result{Deleted: p.store.deleteLocked(op.key, op.fields)}
	}
	return results, nil
}

type latestRow struct {
	ThreadID any    `json:"thread_id"`
	Version  string `json:"version"`
	Date     string `json:"date"`
}

// latestBody renders a successful latest-listing envelope.
func latestBody(t *testing.T, rows ...latestRow) []byte {
	t.Helper()
	if rows == nil {
		rows = []latestRow{}
	}
	body, err := json.Marshal(map[string]any{
		"status": "ok",
		"msg":    map[string]any{"data": rows},
	})
	if err != nil {
		t.Fatalf("marshal latest body: %v", err)
	}
	return body
}

type latestCall struct {
	category string
	page     int
}

type fakeLatestLister struct {
	mu    sync.Mutex
	pages map[latestCall][]byte
	errs  map[latestCall]error
	calls []latestCall
}

func newFakeLatestLister() *fakeLatestLister {
	return &fakeLatestLister{
		pages: make(map[latestCall][]byte),
		errs:  make(map[latestCall]error),
	}
}

func (f *fakeLatestLister) set(category string, page int, body []byte) {
	f.pages[latestCall{category: category, page: page}] = body
}

func (f *fakeLatestLister) Latest(_ context.Context, category string, page int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := latestCall{category: category, page: page}
	f.calls = append(f.calls, call)
	if err := f.errs[call]; err != nil {
		return nil, err
	}
	if body, ok := f.pages[call]; ok {
		return body, nil
	}
	return []byte(`{"status":"ok","msg":{"data":[]}}`), nil
}

type fakeVersionChecker struct {
	mu      sync.Mutex
	batches [][]string
	respond func(ids []string) ([]byte, error)
}

func (f *fakeVersionChecker) CheckVersions(_ context.Context, ids []string) ([]byte, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.respond == nil {
		return nil, errors.New("no responder configured")
	}
	return f.respond(ids)
}

// versionsBody renders a successful bulk version-check envelope.
func versionsBody(versions map[string]string) []byte {
	parts := make([]string, 0, len(versions))
	for id, version := range versions {
		parts = append(parts, fmt.Sprintf("%q:%q", id, version))
	}
	slices.Sort(parts)
	return []byte(`{"status":"ok","msg":{` + strings.Join(parts, ",") + `}}`)
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *logRecorder) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
