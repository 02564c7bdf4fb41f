package cache

import (
	"context"
	"time"
)

// NopBackend never stores anything; every read is a miss.
type NopBackend struct{}

func (NopBackend) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }

func (NopBackend) Set(context.Context, string, Entry, time.Duration) error { return nil }

func (NopBackend) TagVersions(_ context.Context, tags ...string) (Stamp, error) {
	out := make(Stamp, len(tags))
	for _, tag := range tags {
		out[tag] = 0
	}
	return out, nil
}

func (NopBackend) InvalidateTags(context.Context, ...string) error { return nil }
