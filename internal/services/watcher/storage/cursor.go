package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/threadwatch/internal/services/watcher/domain"
)

// DefaultCursorKey is the scalar key holding the catch-up cursor.
const DefaultCursorKey = "watcher:latest_cursor"

// Cursor is a handle on the persisted catch-up timestamp.
type Cursor struct {
	store ScalarStore
	key   string
}

// NewCursor returns a cursor stored under key in store.
func NewCursor(store ScalarStore, key string) *Cursor {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultCursorKey
	}
	return &Cursor{store: store, key: key}
}

// Key returns the scalar key backing the cursor.
func (c *Cursor) Key() string {
	return c.key
}

// Get loads the cursor. found is false when none has been written yet.
func (c *Cursor) Get(ctx context.Context) (at time.Time, found bool, err error) {
	if c == nil || c.store == nil {
		return time.Time{}, false, fmt.Errorf("cursor store is not configured")
	}
	raw, found, err := c.store.GetScalar(ctx, c.key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read cursor: %w", err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	at, err = domain.ParseCursor(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// Advance moves the cursor to at. It never moves the cursor backwards.
func (c *Cursor) Advance(ctx context.Context, at time.Time) error {
	current, found, err := c.Get(ctx)
	if err != nil {
		return err
	}
	if found && at.Unix() <= current.Unix() {
		return nil
	}
	if err := c.store.SetScalar(ctx, c.key, domain.FormatCursor(at)); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}
