package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
)

// RecordTick appends one tick outcome.
func (s *Store) RecordTick(ctx context.Context, tick storage.TickRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	watcher := strings.TrimSpace(tick.Watcher)
	if watcher == "" {
		return fmt.Errorf("watcher name is required")
	}
	outcome := strings.TrimSpace(tick.Outcome)
	if outcome == "" {
		return fmt.Errorf("tick outcome is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO watcher_ticks (watcher, started_at, duration_ms, invalidated, outcome, last_error)
VALUES (?, ?, ?, ?, ?, ?)
`,
		watcher,
		tick.StartedAt.UTC().UnixMilli(),
		tick.Duration.Milliseconds(),
		tick.Invalidated,
		outcome,
		strings.TrimSpace(tick.Error),
	)
	if err != nil {
		return fmt.Errorf("record tick: %w", err)
	}
	return nil
}

// ListTicks returns the most recent ticks, newest first.
func (s *Store) ListTicks(ctx context.Context, limit int) ([]storage.TickRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, watcher, started_at, duration_ms, invalidated, outcome, last_error
FROM watcher_ticks
ORDER BY started_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ticks: %w", err)
	}
	defer rows.Close()

	ticks := make([]storage.TickRecord, 0, limit)
	for rows.Next() {
		var (
			tick       storage.TickRecord
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&tick.ID, &tick.Watcher, &startedAt, &durationMS, &tick.Invalidated, &tick.Outcome, &tick.Error); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tick.StartedAt = time.UnixMilli(startedAt).UTC()
		tick.Duration = time.Duration(durationMS) * time.Millisecond
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// PruneTicks keeps only the newest keep ticks.
func (s *Store) PruneTicks(ctx context.Context, keep int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if keep < 0 {
		return fmt.Errorf("keep must not be negative")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM watcher_ticks
WHERE id NOT IN (
    SELECT id FROM watcher_ticks ORDER BY started_at DESC, id DESC LIMIT ?
)
`, keep)
	if err != nil {
		return fmt.Errorf("prune ticks: %w", err)
	}
	return nil
}

var _ storage.TickStore = (*Store)(nil)
