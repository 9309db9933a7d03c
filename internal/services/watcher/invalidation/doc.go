// Package invalidation implements the background watchers that keep the
// thread cache consistent with upstream.
//
// Each watcher exposes a single Tick that performs one full pass and reports
// how many cache entries it invalidated. Scheduling, tracing, and health are
// owned by the caller; a watcher never retries inside a tick, so the unit of
// retry is the next tick.
//
// Consistency across watchers is best effort: two watchers may invalidate the
// same thread in the same window, which is safe because deleting fields that
// are already gone is a no-op.
package invalidation
