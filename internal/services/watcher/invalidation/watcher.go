package invalidation

import (
	"context"
	"log"
	"strings"

	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
)

// Watcher names used for logs, spans, health services, and tick history.
const (
	NameUpdates  = "updates"
	NameVersions = "versions"
	NameCatchUp  = "catchup"
)

// DefaultCategories are the upstream listing categories tracked when none
// are configured.
var DefaultCategories = []string{"games", "comics", "animations"}

// Logf is the logging hook accepted by every watcher.
type Logf func(format string, args ...any)

// LatestLister fetches one page of the "latest items" listing.
type LatestLister interface {
	Latest(ctx context.Context, category string, page int) ([]byte, error)
}

// VersionChecker bulk-checks versions for a batch of thread ids.
type VersionChecker interface {
	CheckVersions(ctx context.Context, ids []string) ([]byte, error)
}

// TickResult summarizes one watcher pass.
type TickResult struct {
	// Invalidated counts keys where at least one field was actually removed.
	Invalidated int64
	// Queued counts invalidations sent to the cache.
	Queued int
	// Requests counts upstream calls issued.
	Requests int
	// Skipped counts sweep batches upstream answered with "thread not found".
	Skipped int
}

// Watcher is one periodically driven invalidation strategy.
type Watcher interface {
	Name() string
	Tick(ctx context.Context) (TickResult, error)
}

func normalizeLogf(logf Logf) Logf {
	if logf == nil {
		return log.Printf
	}
	return logf
}

func normalizeCategories(categories []string) []string {
	normalized := make([]string, 0, len(categories))
	seen := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		normalized = append(normalized, category)
	}
	if len(normalized) == 0 {
		return append([]string(nil), DefaultCategories...)
	}
	return normalized
}

// countAffected counts delete results that removed at least one field.
func countAffected(results []storage.Result) int64 {
	var affected int64
	for _, result := range results {
		if result.Deleted > 0 {
			affected++
		}
	}
	return affected
}
