package app

import (
	"context"
	"log"
	"strings"

	"github.com/louisbranch/threadwatch/internal/services/watcher/storage"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const healthServicePrefix = "watcher."

// healthServiceName returns the gRPC health service reporting on a watcher.
func healthServiceName(watcher string) string {
	return healthServicePrefix + watcher
}

type healthObserver struct {
	server *health.Server
}

func (o healthObserver) ObserveTick(_ context.Context, tick TickOutcome) {
	if o.server == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if tick.Err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	o.server.SetServingStatus(healthServiceName(tick.Watcher), status)
}

// tickRecorder persists tick outcomes and keeps only the newest keep rows.
type tickRecorder struct {
	store storage.TickStore
	keep  int
	logf  func(format string, args ...any)
}

func newTickRecorder(store storage.TickStore, keep int, logf func(format string, args ...any)) *tickRecorder {
	if keep <= 0 {
		keep = defaultTickHistoryLimit
	}
	if logf == nil {
		logf = log.Printf
	}
	return &tickRecorder{store: store, keep: keep, logf: logf}
}

func (r *tickRecorder) ObserveTick(ctx context.Context, tick TickOutcome) {
	if r == nil || r.store == nil {
		return
	}
	record := storage.TickRecord{
		Watcher:     tick.Watcher,
		StartedAt:   tick.StartedAt,
		Duration:    tick.Duration,
		Invalidated: tick.Result.Invalidated,
		Outcome:     storage.TickSucceeded,
	}
	if tick.Err != nil {
		record.Outcome = storage.TickFailed
		record.Error = strings.TrimSpace(tick.Err.Error())
	}
	if err := r.store.RecordTick(ctx, record); err != nil {
		r.logf("record %s tick: %v", tick.Watcher, err)
		return
	}
	if err := r.store.PruneTicks(ctx, r.keep); err != nil {
		r.logf("prune tick history: %v", err)
	}
}

// observers fans one tick out to several observers in order.
type observers []TickObserver

func (o observers) ObserveTick(ctx context.Context, tick TickOutcome) {
	for _, observer := range o {
		if observer != nil {
			observer.ObserveTick(ctx, tick)
		}
	}
}
