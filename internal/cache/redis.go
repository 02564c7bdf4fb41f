package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTagPrefix = "cachetag:"

// RedisBackend stores entries as JSON strings with a native TTL and keeps tag
// versions in counters that INCR on invalidation.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// DialRedis parses a redis:// URL into a client. A bare host:port is accepted as well.
func DialRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return redis.NewClient(opts), nil
}

// NewRedisBackend wraps client. prefix is prepended to every key this backend writes.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return entry, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return r.client.Set(ctx, r.prefix+key, payload, ttl).Err()
}

func (r *RedisBackend) TagVersions(ctx context.Context, tags ...string) (Stamp, error) {
	out := make(Stamp, len(tags))
	if len(tags) == 0 {
		return out, nil
	}
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = r.tagKey(tag)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, tag := range tags {
		out[tag] = 0
		s, ok := values[i].(string)
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", tag, err)
		}
		out[tag] = v
	}
	return out, nil
}

func (r *RedisBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, tag := range tags {
		pipe.Incr(ctx, r.tagKey(tag))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) tagKey(tag string) string {
	return r.prefix + redisTagPrefix + tag
}
