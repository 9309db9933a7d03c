package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	sqlitemigrate "github.com/louisbranch/threadwatch/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// scanPageSize bounds how many keys ScanKeys holds in memory at once.
const scanPageSize = 1000

// Store provides SQLite-backed cache and tick persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a watcher SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetScalar reads a scalar value.
func (s *Store) GetScalar(ctx context.Context, key string) (string, bool, error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	var value string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM cache_scalars WHERE scalar_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get scalar %s: %w", key, err)
	}
	return value, true, nil
}

// SetScalar upserts a scalar value.
func (s *Store) SetScalar(ctx context.Context, key, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("scalar key is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cache_scalars (scalar_key, value) VALUES (?, ?)
ON CONFLICT(scalar_key) DO UPDATE SET value = excluded.value
`, key, value)
	if err != nil {
		return fmt.Errorf("set scalar %s: %w", key, err)
	}
	return nil
}

// GetField reads one hash field.
func (s *Store) GetField(ctx context.Context, key, field string) (string, bool, error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	return getField(ctx, s.sqlDB, key, field)
}

// DeleteFields atomically removes hash fields and reports how many existed.
func (s *Store) DeleteFields(ctx context.Context, key string, fields ...string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return deleteFields(ctx, s.sqlDB, key, fields)
}

// SetFields upserts hash fields in one transaction.
func (s *Store) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if err := s.ready(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("cache key is required")
	}
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set fields: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for field, value := range fields {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO cache_fields (cache_key, field, value) VALUES (?, ?, ?)
ON CONFLICT(cache_key, field) DO UPDATE SET value = excluded.value
`, key, field, value); err != nil {
			return fmt.Errorf("set field %s %s: %w", key, field, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set fields: %w", err)
	}
	return nil
}

// ScanKeys yields distinct hash keys matching a glob pattern, one page at a
// time in key order. Only hashes are stored here, so any other keyType
// yields nothing.
func (s *Store) ScanKeys(ctx context.Context, pattern, keyType string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := s.ready(); err != nil {
			yield("", err)
			return
		}
		if keyType = strings.TrimSpace(keyType); keyType != "" && keyType != storage.KeyTypeHash {
			return
		}
		after := ""
		for {
			page, err := s.scanPage(ctx, pattern, after)
			if err != nil {
				yield("", err)
				return
			}
			for _, key := range page {
				if !yield(key, nil) {
					return
				}
			}
			if len(page) < scanPageSize {
				return
			}
			after = page[len(page)-1]
		}
	}
}

func (s *Store) scanPage(ctx context.Context, pattern, after string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT DISTINCT cache_key
FROM cache_fields
WHERE cache_key GLOB ? AND cache_key > ?
ORDER BY cache_key
LIMIT ?
`, pattern, after, scanPageSize)
	if err != nil {
		return nil, fmt.Errorf("scan keys %s: %w", pattern, err)
	}
	defer rows.Close()

	keys := make([]string, 0, scanPageSize)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// Pipeline starts a batch executed in a single transaction.
func (s *Store) Pipeline() storage.Pipeline {
	return &pipeline{store: s}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getField(ctx context.Context, q queryer, key, field string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM cache_fields WHERE cache_key = ? AND field = ?`, key, field).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get field %s %s: %w", key, field, err)
	}
	return value, true, nil
}

func deleteFields(ctx context.Context, q queryer, key string, fields []string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(fields)+1)
	args = append(args, key)
	for _, field := range fields {
		args = append(args, field)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fields)), ",")
	result, err := q.ExecContext(ctx,
		`DELETE FROM cache_fields WHERE cache_key = ? AND field IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete fields %s: %w", key, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete fields %s: %w", key, err)
	}
	return deleted, nil
}

type pipelineOp struct {
	get    bool
	key    string
	fields []string
}

type pipeline struct {
	store *Store
	ops   []pipelineOp
}

func (p *pipeline) GetField(key, field string) {
	p.ops = append(p.ops, pipelineOp{get: true, key: key, fields: []string{field}})
}

func (p *pipeline) DeleteFields(key string, fields ...string) {
	p.ops = append(p.ops, pipelineOp{key: key, fields: append([]string(nil), fields...)})
}

func (p *pipeline) Len() int {
	return len(p.ops)
}

func (p *pipeline) Exec(ctx context.Context) ([]storage.Result, error) {
	if err := p.store.ready(); err != nil {
		return nil, err
	}
	if len(p.ops) == 0 {
		return nil, nil
	}

	tx, err := p.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin pipeline: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	results := make([]storage.Result, len(p.ops))
	for i, op := range p.ops {
		if op.get {
			value, found, err := getField(ctx, tx, op.key, op.fields[0])
			if err != nil {
				return nil, err
			}
			results[i] = storage.Result{Value: value, Found: found}
			continue
		}
		deleted, err := deleteFields(ctx, tx, op.key, op.fields)
		if err != nil {
			return nil, err
		}
		results[i] = storage.Result{Deleted: deleted}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pipeline: %w", err)
	}
	p.ops = nil
	return results, nil
}

var _ storage.CacheStore = (*Store)(nil)
