// Package sqlite provides the watcher persistence adapter backed by SQLite.
//
// It implements the thread cache contract for single-node deployments, where
// hashes are rows of (cache_key, field, value), and it keeps the tick history
// for every deployment.
package sqlite
