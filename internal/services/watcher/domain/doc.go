// Package domain holds the pure rules shared by the cache watchers: how thread
// cache keys are named, which cached versions can be trusted, how upstream
// relative timestamps are read, and how far back catch-up has to look.
//
// Nothing here performs I/O.
package domain
