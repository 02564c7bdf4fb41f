package cache

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/logging"
)

// BreakerBackend short-circuits a remote Backend after repeated failures so a
// struggling cache stops adding latency to every request.
type BreakerBackend struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings builds breaker settings that trip after failures consecutive errors.
func BreakerSettings(name string, failures uint32, openFor time.Duration, logger *zap.Logger) gobreaker.Settings {
	logger = logging.OrNop(logger)
	if failures == 0 {
		failures = 5
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
}

// NewBreakerBackend wraps next with a circuit breaker.
func NewBreakerBackend(next Backend, settings gobreaker.Settings) *BreakerBackend {
	return &BreakerBackend{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

type getResult struct {
	entry Entry
	ok    bool
}

func (b *BreakerBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		entry, ok, err := b.next.Get(ctx, key)
		return getResult{entry: entry, ok: ok}, err
	})
	if err != nil {
		return Entry{}, false, err
	}
	out := res.(getResult)
	return out.entry, out.ok, nil
}

func (b *BreakerBackend) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, key, entry, ttl)
	})
	return err
}

func (b *BreakerBackend) TagVersions(ctx context.Context, tags ...string) (Stamp, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.TagVersions(ctx, tags...)
	})
	if err != nil {
		return nil, err
	}
	return res.(Stamp), nil
}

func (b *BreakerBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.InvalidateTags(ctx, tags...)
	})
	return err
}

// State reports the breaker state.
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}
