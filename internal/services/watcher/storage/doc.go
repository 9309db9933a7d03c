// Package storage declares the cache store contract the watchers run against.
//
// The cache is populated on demand elsewhere; watchers only read versions,
// enumerate keys, delete fields and keep one scalar cursor. Deleting fields is
// idempotent, so concurrent watchers may invalidate the same thread without
// coordination.
package storage
