// Package cache memoizes per-movie rating aggregates behind tag-versioned
// invalidation.
//
// Every tag carries a monotonically increasing version. An entry records the
// versions of its tags as they were before its value was computed, and is
// served only while those versions are still current. Invalidating a tag bumps
// its version, which turns every older entry into a miss at once, including
// an entry written by a fill that raced with the invalidation.
package cache

import (
	"context"
	"time"
)

// Stamp is a snapshot of tag versions.
type Stamp map[string]uint64

// Entry is a cached payload together with the tag versions it was computed under.
type Entry struct {
	Data []byte `json:"data"`
	Tags Stamp  `json:"tags"`
}

// Backend is the storage contract every cache implementation satisfies.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the entry stored under key. A missing or expired key is (Entry{}, false, nil).
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores entry under key for ttl.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// TagVersions returns the current version of each tag. Unknown tags are at version 0.
	TagVersions(ctx context.Context, tags ...string) (Stamp, error)
	// InvalidateTags bumps the version of each tag.
	InvalidateTags(ctx context.Context, tags ...string) error
}

func (s Stamp) current(now Stamp) bool {
	for tag, v := range s {
		if now[tag] != v {
			return false
		}
	}
	return true
}
