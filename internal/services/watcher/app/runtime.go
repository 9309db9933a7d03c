package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/threadwatch/internal/services/watcher/invalidation"
	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
	watcherredis "github.com/louisbranch/threadwatch/internal/services/watcher/storage/redis"
	watchersqlite "github.com/louisbranch/threadwatch/internal/services/watcher/storage/sqlite"
	"github.com/louisbranch/threadwatch/internal/services/watcher/upstream"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Cache backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

const (
	defaultWatcherPort      = 8092
	defaultWatcherDB        = "data/watcher.db"
	defaultRedisAddr        = "localhost:6379"
	defaultUpdatesInterval  = 5 * time.Minute
	defaultVersionsInterval = 12 * time.Hour
	defaultCatchUpInterval  = 5 * time.Minute
	defaultTickHistoryLimit = 500
)

// RuntimeConfig controls watcher startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port int

	CacheBackend   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string
	DBPath         string

	UpstreamBaseURL string
	UpstreamCookies string
	UpstreamTimeout time.Duration

	Categories        []string
	UpdatesEnabled    bool
	UpdatesInterval   time.Duration
	VersionsEnabled   bool
	VersionsInterval  time.Duration
	VersionsBatchSize int
	CatchUpEnabled    bool
	CatchUpInterval   time.Duration
	CacheTTL          time.Duration
	CursorKey         string
	TickHistoryLimit  int
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.Port <= 0 {
		cfg.Port = defaultWatcherPort
	}
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = BackendRedis
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		cfg.RedisAddr = defaultRedisAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWatcherDB
	}
	if cfg.UpdatesInterval <= 0 {
		cfg.UpdatesInterval = defaultUpdatesInterval
	}
	if cfg.VersionsInterval <= 0 {
		cfg.VersionsInterval = defaultVersionsInterval
	}
	if cfg.VersionsBatchSize <= 0 {
		cfg.VersionsBatchSize = invalidation.DefaultBatchSize
	}
	if cfg.CatchUpInterval <= 0 {
		cfg.CatchUpInterval = defaultCatchUpInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = invalidation.DefaultCacheTTL
	}
	if strings.TrimSpace(cfg.CursorKey) == "" {
		cfg.CursorKey = storage.DefaultCursorKey
	}
	if cfg.TickHistoryLimit <= 0 {
		cfg.TickHistoryLimit = defaultTickHistoryLimit
	}
	return cfg
}

// upstreamClient is what the watchers need from the upstream package.
type upstreamClient interface {
	invalidation.LatestLister
	invalidation.VersionChecker
}

// Run starts watcher runtime dependencies and the background loops, and
// blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()
	if cfg.CacheBackend != BackendRedis && cfg.CacheBackend != BackendSQLite {
		return fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watcher storage dir: %w", err)
		}
	}

	sqliteStore, err := watchersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open watcher sqlite store: %w", err)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			log.Printf("close watcher sqlite store: %v", closeErr)
		}
	}()

	var cacheStore storage.CacheStore = sqliteStore
	if cfg.CacheBackend == BackendRedis {
		redisStore, err := watcherredis.Open(ctx, watcherredis.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.RedisNamespace,
		})
		if err != nil {
			return fmt.Errorf("open watcher redis store: %w", err)
		}
		defer func() {
			if closeErr := redisStore.Close(); closeErr != nil {
				log.Printf("close watcher redis store: %v", closeErr)
			}
		}()
		cacheStore = redisStore
	}

	client, err := upstream.NewClient(upstream.Options{
		BaseURL: cfg.UpstreamBaseURL,
		Cookies: cfg.UpstreamCookies,
		Timeout: cfg.UpstreamTimeout,
	})
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on watcher port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	observer := observers{
		healthObserver{server: healthServer},
		newTickRecorder(sqliteStore, cfg.TickHistoryLimit, log.Printf),
	}
	loops := buildLoops(cfg, cacheStore, client, observer, log.Printf)
	if len(loops) == 0 {
		return fmt.Errorf("no watchers enabled")
	}
	for _, loop := range loops {
		healthServer.SetServingStatus(healthServiceName(loop.Name()), grpc_health_v1.HealthCheckResponse_SERVING)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	manager := NewManager(loops...)
	if err := manager.Start(ctx); err != nil {
		return err
	}
	log.Printf("watcher server listening at %v with %s cache (%d watchers)", listener.Addr(), cfg.CacheBackend, len(loops))

	<-ctx.Done()
	return manager.Stop()
}

// buildLoops wires the enabled watchers to their schedules. The version
// sweep waits one interval before its first pass; the others start at once.
func buildLoops(
	cfg RuntimeConfig,
	store storage.CacheStore,
	client upstreamClient,
	observer TickObserver,
	logf func(format string, args ...any),
) []*Loop {
	loops := make([]*Loop, 0, 3)
	if cfg.UpdatesEnabled {
		watcher := invalidation.NewUpdateListWatcher(store, client, cfg.Categories, logf)
		loops = append(loops, NewLoop(watcher, LoopConfig{Interval: cfg.UpdatesInterval}, observer, logf))
	}
	if cfg.VersionsEnabled {
		watcher := invalidation.NewVersionSweepWatcher(store, client, cfg.VersionsBatchSize, logf)
		loops = append(loops, NewLoop(watcher, LoopConfig{
			Interval:     cfg.VersionsInterval,
			InitialDelay: cfg.VersionsInterval,
		}, observer, logf))
	}
	if cfg.CatchUpEnabled {
		watcher := invalidation.NewCatchUpWatcher(store, storage.NewCursor(store, cfg.CursorKey), client, invalidation.CatchUpConfig{
			Categories: cfg.Categories,
			CacheTTL:   cfg.CacheTTL,
			Logf:       logf,
		})
		loops = append(loops, NewLoop(watcher, LoopConfig{Interval: cfg.CatchUpInterval}, observer, logf))
	}
	return loops
}
