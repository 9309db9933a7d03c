// Package watcher parses watcher command flags and launches the watcher runtime.
package watcher

import (
	"context"
	"flag"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/threadwatch/internal/platform/cmd"
	watcherserver "github.com/louisbranch/threadwatch/internal/services/watcher/app"
)

// Config holds watcher command configuration.
type Config struct {
	Port int `env:"THREADWATCH_WATCHER_PORT" envDefault:"8092"`

	CacheBackend   string `env:"THREADWATCH_WATCHER_CACHE_BACKEND" envDefault:"redis"`
	RedisAddr      string `env:"THREADWATCH_WATCHER_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"THREADWATCH_WATCHER_REDIS_PASSWORD"`
	RedisDB        int    `env:"THREADWATCH_WATCHER_REDIS_DB" envDefault:"0"`
	RedisNamespace string `env:"THREADWATCH_WATCHER_REDIS_NAMESPACE"`
	DBPath         string `env:"THREADWATCH_WATCHER_DB_PATH" envDefault:"data/watcher.db"`

	UpstreamBaseURL string        `env:"THREADWATCH_WATCHER_UPSTREAM_BASE_URL" envDefault:"https://f95zone.to"`
	UpstreamCookies string        `env:"THREADWATCH_WATCHER_UPSTREAM_COOKIES"`
	UpstreamTimeout time.Duration `env:"THREADWATCH_WATCHER_UPSTREAM_TIMEOUT" envDefault:"30s"`

	Categories        []string      `env:"THREADWATCH_WATCHER_CATEGORIES" envDefault:"games,comics,animations" envSeparator:","`
	UpdatesEnabled    bool          `env:"THREADWATCH_WATCHER_UPDATES_ENABLED" envDefault:"true"`
	UpdatesInterval   time.Duration `env:"THREADWATCH_WATCHER_UPDATES_INTERVAL" envDefault:"5m"`
	VersionsEnabled   bool          `env:"THREADWATCH_WATCHER_VERSIONS_ENABLED" envDefault:"true"`
	VersionsInterval  time.Duration `env:"THREADWATCH_WATCHER_VERSIONS_INTERVAL" envDefault:"12h"`
	VersionsBatchSize int           `env:"THREADWATCH_WATCHER_VERSIONS_BATCH_SIZE" envDefault:"1000"`
	CatchUpEnabled    bool          `env:"THREADWATCH_WATCHER_CATCHUP_ENABLED" envDefault:"false"`
	CatchUpInterval   time.Duration `env:"THREADWATCH_WATCHER_CATCHUP_INTERVAL" envDefault:"5m"`
	CacheTTL          time.Duration `env:"THREADWATCH_WATCHER_CACHE_TTL" envDefault:"168h"`
	CursorKey         string        `env:"THREADWATCH_WATCHER_CURSOR_KEY" envDefault:"watcher:latest_cursor"`
	TickHistoryLimit  int           `env:"THREADWATCH_WATCHER_TICK_HISTORY_LIMIT" envDefault:"500"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	categories := strings.Join(cfg.Categories, ",")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The watcher health gRPC server port")
	fs.StringVar(&cfg.CacheBackend, "cache-backend", cfg.CacheBackend, "Thread cache backend (redis or sqlite)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "The Redis server address")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "The Redis logical database")
	fs.StringVar(&cfg.RedisNamespace, "redis-namespace", cfg.RedisNamespace, "Prefix applied to every Redis key")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The watcher SQLite database path")
	fs.StringVar(&cfg.UpstreamBaseURL, "upstream-base-url", cfg.UpstreamBaseURL, "Upstream site base URL")
	fs.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", cfg.UpstreamTimeout, "Upstream request timeout")
	fs.StringVar(&categories, "categories", categories, "Comma separated listing categories to watch")
	fs.BoolVar(&cfg.UpdatesEnabled, "updates", cfg.UpdatesEnabled, "Run the update-list watcher")
	fs.DurationVar(&cfg.UpdatesInterval, "updates-interval", cfg.UpdatesInterval, "Update-list watcher interval")
	fs.BoolVar(&cfg.VersionsEnabled, "versions", cfg.VersionsEnabled, "Run the version-sweep watcher")
	fs.DurationVar(&cfg.VersionsInterval, "versions-interval", cfg.VersionsInterval, "Version-sweep watcher interval")
	fs.IntVar(&cfg.VersionsBatchSize, "versions-batch-size", cfg.VersionsBatchSize, "Thread ids per bulk version check")
	fs.BoolVar(&cfg.CatchUpEnabled, "catchup", cfg.CatchUpEnabled, "Run the catch-up cursor watcher")
	fs.DurationVar(&cfg.CatchUpInterval, "catchup-interval", cfg.CatchUpInterval, "Catch-up watcher interval")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Thread cache TTL bounding catch-up look-back")
	fs.StringVar(&cfg.CursorKey, "cursor-key", cfg.CursorKey, "Cache key holding the catch-up cursor")
	fs.IntVar(&cfg.TickHistoryLimit, "tick-history-limit", cfg.TickHistoryLimit, "Tick records retained in SQLite")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.Categories = splitCategories(categories)
	return cfg, nil
}

func splitCategories(raw string) []string {
	parts := strings.Split(raw, ",")
	categories := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			categories = append(categories, part)
		}
	}
	return categories
}

// Run starts the watcher runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWatcher, func(context.Context) error {
		return watcherserver.Run(ctx, watcherserver.RuntimeConfig{
			Port:              cfg.Port,
			CacheBackend:      cfg.CacheBackend,
			RedisAddr:         cfg.RedisAddr,
			RedisPassword:     cfg.RedisPassword,
			RedisDB:           cfg.RedisDB,
			RedisNamespace:    cfg.RedisNamespace,
			DBPath:            cfg.DBPath,
			UpstreamBaseURL:   cfg.UpstreamBaseURL,
			UpstreamCookies:   cfg.UpstreamCookies,
			UpstreamTimeout:   cfg.UpstreamTimeout,
			Categories:        cfg.Categories,
			UpdatesEnabled:    cfg.UpdatesEnabled,
			UpdatesInterval:   cfg.UpdatesInterval,
			VersionsEnabled:   cfg.VersionsEnabled,
			VersionsInterval:  cfg.VersionsInterval,
			VersionsBatchSize: cfg.VersionsBatchSize,
			CatchUpEnabled:    cfg.CatchUpEnabled,
			CatchUpInterval:   cfg.CatchUpInterval,
			CacheTTL:          cfg.CacheTTL,
			CursorKey:         cfg.CursorKey,
			TickHistoryLimit:  cfg.TickHistoryLimit,
		})
	})
}
