package migrations

import "embed"

// FS contains embedded SQLite migrations for watcher storage.
//
//go:embed *.sql
var FS embed.FS
