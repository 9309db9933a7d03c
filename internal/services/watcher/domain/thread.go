package domain

import "strings"

const (
	// ThreadKeyPrefix starts every per-thread cache hash key.
	ThreadKeyPrefix = "thread:"
	// ThreadKeyPattern matches every per-thread cache hash key.
	ThreadKeyPattern = ThreadKeyPrefix + "*"

	// FieldVersion holds the cached upstream version string.
	FieldVersion = "version"
	// FieldLastCached holds the time the full record was last populated.
	FieldLastCached = "last_cached"

	// UnknownVersion is the upstream sentinel for a thread without a usable version.
	UnknownVersion = "Unknown"
)

// ThreadKey returns the cache hash key for a thread id.
func ThreadKey(threadID string) string {
	return ThreadKeyPrefix + strings.TrimSpace(threadID)
}

// ThreadIDFromKey extracts the thread id from a cache hash key.
func ThreadIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, ThreadKeyPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// UsableVersion reports whether an upstream version can be compared against
// the cache.
func UsableVersion(version string) bool {
	return version != "" && version != UnknownVersion
}

// IsStale reports whether a cached version must be invalidated given the
// version upstream reports. Missing cached versions and unusable upstream
// versions never invalidate.
func IsStale(cached string, cachedOK bool, upstream string) bool {
	if !cachedOK {
		return false
	}
	if !UsableVersion(upstream) {
		return false
	}
	return cached != upstream
}

// InvalidationFields lists the hash fields removed together when a thread is
// invalidated after a version mismatch. They are always deleted in one
// command so that "has last_cached" and "has a trusted version" agree.
func InvalidationFields() []string {
	return []string{FieldLastCached, FieldVersion}
}
