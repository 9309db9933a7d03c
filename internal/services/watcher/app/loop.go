package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/louisbranch/threadwatch/internal/services/watcher/invalidation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/threadwatch/internal/services/watcher/app"

// TickObserver is notified after every tick that was not cancelled.
type TickObserver interface {
	ObserveTick(ctx context.Context, tick TickOutcome)
}

// TickOutcome describes one finished tick.
type TickOutcome struct {
	Watcher   string
	StartedAt time.Time
	Duration  time.Duration
	Result    invalidation.TickResult
	Err       error
}

// LoopConfig controls one watcher loop's schedule.
type LoopConfig struct {
	Interval time.Duration
	// InitialDelay is waited before the first tick; zero ticks immediately.
	InitialDelay time.Duration
}

// Loop drives a watcher on a fixed interval. The next tick is scheduled one
// interval after the previous tick ends, so ticks never overlap.
type Loop struct {
	watcher  invalidation.Watcher
	config   LoopConfig
	observer TickObserver
	tracer   trace.Tracer
	logf     func(format string, args ...any)
	now      func() time.Time
}

// NewLoop builds a loop for watcher. A nil observer is allowed.
func NewLoop(watcher invalidation.Watcher, cfg LoopConfig, observer TickObserver, logf func(format string, args ...any)) *Loop {
	if logf == nil {
		logf = log.Printf
	}
	return &Loop{
		watcher:  watcher,
		config:   cfg,
		observer: observer,
		tracer:   otel.Tracer(tracerName),
		logf:     logf,
		now:      time.Now,
	}
}

// Name returns the driven watcher's name.
func (l *Loop) Name() string {
	if l == nil || l.watcher == nil {
		return ""
	}
	return l.watcher.Name()
}

// Run ticks until ctx is cancelled. Tick failures are logged and retried on
// the next interval; cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.watcher == nil {
		return errors.New("watcher loop is not configured")
	}
	if l.config.Interval <= 0 {
		return errors.New("watcher loop interval must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !sleep(ctx, l.config.InitialDelay) {
		return nil
	}
	for {
		l.RunOnce(ctx)
		if !sleep(ctx, l.config.Interval) {
			return nil
		}
	}
}

// RunOnce performs a single traced tick and reports it to the observer.
func (l *Loop) RunOnce(ctx context.Context) {
	name := l.watcher.Name()
	spanCtx, span := l.tracer.Start(ctx, "watcher."+name+".tick")
	defer span.End()

	startedAt := l.now()
	result, err := l.watcher.Tick(spanCtx)
	duration := l.now().Sub(startedAt)

	if err != nil && ctx.Err() != nil {
		span.SetAttributes(attribute.String("watcher.outcome", "cancelled"))
		return
	}

	span.SetAttributes(
		attribute.Int64("watcher.invalidated", result.Invalidated),
		attribute.Int("watcher.requests", result.Requests),
	)
	if err != nil {
		span.SetAttributes(attribute.String("watcher.outcome", "failed"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logf("%s watcher tick failed after %s: %v (cause %T)", name, duration.Round(time.Millisecond), err, rootCause(err))
	} else {
		span.SetAttributes(attribute.String("watcher.outcome", "succeeded"))
	}

	if l.observer != nil {
		l.observer.ObserveTick(ctx, TickOutcome{
			Watcher:   name,
			StartedAt: startedAt,
			Duration:  duration,
			Result:    result,
			Err:       err,
		})
	}
}

// rootCause follows the wrap chain to the innermost error.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// sleep waits d or until ctx is done. It reports whether the loop should
// continue.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
