// Package timeouts defines shared timeout constants used by the watcher
// process. Keeping them together makes the durations discoverable.
package timeouts

import "time"

// UpstreamRequest caps one HTTP request to the upstream listing or
// version-check endpoints.
const UpstreamRequest = 30 * time.Second

// StoreDial caps the initial connectivity check against the cache store.
const StoreDial = 5 * time.Second

// Shutdown limits how long the health server and telemetry exporters wait
// for in-flight work during graceful shutdown.
const Shutdown = 5 * time.Second
