package storage

import (
	"context"
	"iter"
	"time"
)

// Result is the outcome of one queued pipeline operation.
type Result struct {
	// Value and Found answer a GetField operation.
	Value string
	Found bool
	// Deleted counts the fields a DeleteFields operation removed.
	Deleted int64
}

// Pipeline queues cache operations and sends them in one round trip.
// Exec returns one Result per queued operation in submission order. A
// pipeline is not safe for concurrent use and is discarded after Exec.
type Pipeline interface {
	GetField(key, field string)
	DeleteFields(key string, fields ...string)
	Len() int
	Exec(ctx context.Context) ([]Result, error)
}

// KeyTypeHash selects hash keys in ScanKeys.
const KeyTypeHash = "hash"

// ScalarStore reads and writes single string values.
type ScalarStore interface {
	GetScalar(ctx context.Context, key string) (string, bool, error)
	SetScalar(ctx context.Context, key, value string) error
}

// CacheStore is the thread cache as seen by the watchers.
type CacheStore interface {
	ScalarStore
	Pipeline() Pipeline
	// ScanKeys lazily yields keys matching a glob pattern such as "thread:*".
	// A non-empty keyType, such as KeyTypeHash, restricts the scan to keys of
	// that type. Iteration stops at the first error, which is yielded with an
	// empty key.
	ScanKeys(ctx context.Context, pattern, keyType string) iter.Seq2[string, error]
	GetField(ctx context.Context, key, field string) (string, bool, error)
	// DeleteFields atomically removes fields from one hash and reports how many existed.
	DeleteFields(ctx context.Context, key string, fields ...string) (int64, error)
	// SetFields writes hash fields; the watcher never calls it, the populate path and tests do.
	SetFields(ctx context.Context, key string, fields map[string]string) error
	Close() error
}

// TickRecord is one persisted watcher tick outcome.
type TickRecord struct {
	ID          int64
	Watcher     string
	StartedAt   time.Time
	Duration    time.Duration
	Invalidated int64
	Outcome     string
	Error       string
}

// Tick outcomes.
const (
	TickSucceeded = "succeeded"
	TickFailed    = "failed"
)

// TickStore persists watcher tick history.
type TickStore interface {
	RecordTick(ctx context.Context, tick TickRecord) error
	ListTicks(ctx context.Context, limit int) ([]TickRecord, error)
	PruneTicks(ctx context.Context, keep int) error
}
