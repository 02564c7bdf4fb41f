package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend. Entries and tag counters live in
// sync.Maps so operations on different movies never contend on a shared lock.
type MemoryBackend struct {
	entries sync.Map // key -> *memoryItem
	tags    sync.Map // tag -> *atomic.Uint64
	now     func() time.Time

	mu        sync.RWMutex
	onInvalid func(ctx context.Context, tags []string)
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{now: time.Now}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return Entry{}, false, nil
	}
	item := v.(*memoryItem)
	if !m.now().Before(item.expiresAt) {
		m.entries.CompareAndDelete(key, item)
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	m.entries.Store(key, &memoryItem{entry: entry, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryBackend) TagVersions(_ context.Context, tags ...string) (Stamp, error) {
	out := make(Stamp, len(tags))
	for _, tag := range tags {
		if v, ok := m.tags.Load(tag); ok {
			out[tag] = v.(*atomic.Uint64).Load()
			continue
		}
		out[tag] = 0
	}
	return out, nil
}

func (m *MemoryBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	m.bump(tags)

	m.mu.RLock()
	hook := m.onInvalid
	m.mu.RUnlock()
	if hook != nil {
		hook(ctx, tags)
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryBackend) Sweep() int {
	now := m.now()
	removed := 0
	m.entries.Range(func(key, value any) bool {
		if !now.Before(value.(*memoryItem).expiresAt) && m.entries.CompareAndDelete(key, value) {
			removed++
		}
		return true
	})
	return removed
}

func (m *MemoryBackend) bump(tags []string) {
	for _, tag := range tags {
		v, _ := m.tags.LoadOrStore(tag, new(atomic.Uint64))
		v.(*atomic.Uint64).Add(1)
	}
}

func (m *MemoryBackend) setInvalidationHook(hook func(ctx context.Context, tags []string)) {
	m.mu.Lock()
	m.onInvalid = hook
	m.mu.Unlock()
}
