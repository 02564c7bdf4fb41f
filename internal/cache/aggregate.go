package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// DefaultTTL bounds how long an aggregate may be served without invalidation.
const DefaultTTL = 1800 * time.Second

// AggregateCache memoizes rating aggregates per movie. Every backend failure is
// reported as *domain.CacheError.
//
// A movie whose invalidation failed stays pending: it is never served or
// filled from the cache until a later tag bump for it succeeds.
type AggregateCache struct {
	backend Backend
	ttl     time.Duration
	pending sync.Map // movieID -> *pendingMark
}

// NewAggregateCache wraps backend. A non-positive ttl means DefaultTTL.
func NewAggregateCache(backend Backend, ttl time.Duration) *AggregateCache {
	if backend == nil {
		backend = NopBackend{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AggregateCache{backend: backend, ttl: ttl}
}

// Key is the cache key of a movie's aggregate.
func Key(movieID int64) string {
	return fmt.Sprintf("movie_ratings:average:%d", movieID)
}

// Tag is the invalidation tag attached to a movie's aggregate.
func Tag(movieID int64) string {
	return fmt.Sprintf("movie_ratings:movie:%d", movieID)
}

// TTL returns the default lifetime of entries.
func (c *AggregateCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached aggregate, or false on a miss.
func (c *AggregateCache) Get(ctx context.Context, movieID int64) (domain.RatingAggregate, bool, error) {
	key := Key(movieID)
	if c.isPending(movieID) && !c.retry(ctx, movieID) {
		return domain.RatingAggregate{}, false, nil
	}
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		return domain.RatingAggregate{}, false, &domain.CacheError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return domain.RatingAggregate{}, false, nil
	}

	tags := make([]string, 0, len(entry.Tags))
	for tag := range entry.Tags {
		tags = append(tags, tag)
	}
	now, err := c.backend.TagVersions(ctx, tags...)
	if err != nil {
		return domain.RatingAggregate{}, false, &domain.CacheError{Op: "tag versions", Key: key, Err: err}
	}
	if !entry.Tags.current(now) {
		return domain.RatingAggregate{}, false, nil
	}

	var agg domain.RatingAggregate
	if err := json.Unmarshal(entry.Data, &agg); err != nil {
		return domain.RatingAggregate{}, false, &domain.CacheError{Op: "decode", Key: key, Err: err}
	}
	return agg, true, nil
}

// Stamp snapshots the movie's tag versions. Take it before reading the data
// that will be passed to Put.
func (c *AggregateCache) Stamp(ctx context.Context, movieID int64) (Stamp, error) {
	stamp, err := c.backend.TagVersions(ctx, Tag(movieID))
	if err != nil {
		return nil, &domain.CacheError{Op: "stamp", Key: Key(movieID), Err: err}
	}
	return stamp, nil
}

// Put stores result for movieID under stamp. A non-positive ttl means the cache default.
func (c *AggregateCache) Put(ctx context.Context, movieID int64, result domain.RatingAggregate, ttl time.Duration, stamp Stamp) error {
	key := Key(movieID)
	if c.isPending(movieID) {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if stamp == nil {
		stamp = Stamp{Tag(movieID): 0}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return &domain.CacheError{Op: "encode", Key: key, Err: err}
	}
	if err := c.backend.Set(ctx, key, Entry{Data: data, Tags: stamp}, ttl); err != nil {
		return &domain.CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Invalidate makes every cached aggregate of movieID stale. When the backend
// fails, movieID is bypassed until RetryPending or a later Get bumps its tag.
func (c *AggregateCache) Invalidate(ctx context.Context, movieID int64) error {
	if err := c.backend.InvalidateTags(ctx, Tag(movieID)); err != nil {
		c.pending.Store(movieID, &pendingMark{})
		return &domain.CacheError{Op: "invalidate", Key: Tag(movieID), Err: err}
	}
	return nil
}

// Pending reports how many movies are waiting for a successful invalidation.
func (c *AggregateCache) Pending() int {
	n := 0
	c.pending.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RetryPending re-attempts every failed invalidation and returns how many
// are still pending.
func (c *AggregateCache) RetryPending(ctx context.Context) int {
	left := 0
	c.pending.Range(func(k, _ any) bool {
		if ctx.Err() != nil {
			left++
			return true
		}
		if !c.retry(ctx, k.(int64)) {
			left++
		}
		return true
	})
	return left
}

func (c *AggregateCache) isPending(movieID int64) bool {
	_, ok := c.pending.Load(movieID)
	return ok
}

// pendingMark identifies one failed invalidation. A failure recorded while a
// retry is in flight replaces the mark, so that retry cannot clear it.
type pendingMark struct{ _ byte }

// retry bumps the movie's tag and clears the pending mark on success.
func (c *AggregateCache) retry(ctx context.Context, movieID int64) bool {
	mark, ok := c.pending.Load(movieID)
	if !ok {
		return true
	}
	if err := c.backend.InvalidateTags(ctx, Tag(movieID)); err != nil {
		return false
	}
	c.pending.CompareAndDelete(movieID, mark)
	return true
}
