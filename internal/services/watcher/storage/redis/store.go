// Package redis provides the thread cache adapter backed by Redis hashes.
//
// Every key is prefixed with an optional namespace so several watcher
// instances, or tests, can share one Redis without seeing each other's keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/threadwatch/internal/platform/timeouts"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
)

// scanCount is the SCAN COUNT hint; it bounds keys fetched per round trip.
const scanCount = 10000

// Options configures a Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// Store implements storage.CacheStore over a Redis client.
type Store struct {
	client    goredis.UniversalClient
	namespace string
	owned     bool
}

// Open connects to Redis and verifies connectivity.
func Open(ctx context.Context, opts Options) (*Store, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.StoreDial)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	store := New(client, opts.Namespace)
	store.owned = true
	return store, nil
}

// New wraps an existing client. Close does not close a client passed here.
func New(client goredis.UniversalClient, namespace string) *Store {
	return &Store{client: client, namespace: strings.TrimSpace(namespace)}
}

// Close releases the connection when the store opened it.
func (s *Store) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return s.namespace + key
}

// GetScalar reads a string key.
func (s *Store) GetScalar(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// SetScalar writes a string key without expiry.
func (s *Store) SetScalar(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// GetField reads one hash field.
func (s *Store) GetField(ctx context.Context, key, field string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.key(key), field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s %s: %w", key, field, err)
	}
	return value, true, nil
}

// DeleteFields removes hash fields with one HDEL.
func (s *Store) DeleteFields(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	deleted, err := s.client.HDel(ctx, s.key(key), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("hdel %s: %w", key, err)
	}
	return deleted, nil
}

// SetFields writes hash fields with one HSET.
func (s *Store) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for field, value := range fields {
		values[field] = value
	}
	if err := s.client.HSet(ctx, s.key(key), values).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// ScanKeys walks the keyspace with SCAN so memory stays bounded. keyType is
// passed to SCAN TYPE so keys of other types never reach typed commands.
func (s *Store) ScanKeys(ctx context.Context, pattern, keyType string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var it *goredis.ScanIterator
		if keyType = strings.TrimSpace(keyType); keyType != "" {
			it = s.client.ScanType(ctx, 0, s.key(pattern), scanCount, keyType).Iterator()
		} else {
			it = s.client.Scan(ctx, 0, s.key(pattern), scanCount).Iterator()
		}
		for it.Next(ctx) {
			if !yield(strings.TrimPrefix(it.Val(), s.namespace), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", fmt.Errorf("scan %s: %w", pattern, err))
		}
	}
}

// Pipeline starts a batch of HGET/HDEL operations sent as one MULTI/EXEC
// transaction.
func (s *Store) Pipeline() storage.Pipeline {
	return &pipeline{store: s}
}

type opKind int

const (
	opGetField opKind = iota
	opDeleteFields
)

type pipelineOp struct {
	kind   opKind
	key    string
	fields []string
}

type pipeline struct {
	store *Store
	ops   []pipelineOp
}

func (p *pipeline) GetField(key, field string) {
	p.ops = append(p.ops, pipelineOp{kind: opGetField, key: key, fields: []string{field}})
}

func (p *pipeline) DeleteFields(key string, fields ...string) {
	p.ops = append(p.ops, pipelineOp{kind: opDeleteFields, key: key, fields: append([]string(nil), fields...)})
}

func (p *pipeline) Len() int {
	return len(p.ops)
}

func (p *pipeline) Exec(ctx context.Context) ([]storage.Result, error) {
	if len(p.ops) == 0 {
		return nil, nil
	}
	cmds, err := p.store.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, op := range p.ops {
			key := p.store.key(op.key)
			switch op.kind {
			case opGetField:
				pipe.HGet(ctx, key, op.fields[0])
			case opDeleteFields:
				pipe.HDel(ctx, key, op.fields...)
			}
		}
		return nil
	})
	// HGET misses surface as redis.Nil on the pipeline; they are answers, not failures.
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("exec pipeline of %d ops: %w", len(p.ops), err)
	}
	if len(cmds) != len(p.ops) {
		return nil, fmt.Errorf("pipeline returned %d results for %d ops", len(cmds), len(p.ops))
	}

	results := make([]storage.Result, len(cmds))
	for i, cmd := range cmds {
		switch c := cmd.(type) {
		case *goredis.StringCmd:
			value, err := c.Result()
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("pipeline hget %s: %w", p.ops[i].key, err)
			}
			results[i] = storage.Result{Value: value, Found: true}
		case *goredis.IntCmd:
			deleted, err := c.Result()
			if err != nil {
				return nil, fmt.Errorf("pipeline hdel %s: %w", p.ops[i].key, err)
			}
			results[i] = storage.Result{Deleted: deleted}
		default:
			return nil, fmt.Errorf("pipeline returned unexpected %T", cmd)
		}
	}
	p.ops = nil
	return results, nil
}

var _ storage.CacheStore = (*Store)(nil)
