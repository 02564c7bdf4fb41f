package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/logging"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

type invalidationMessage struct {
	Origin string   `json:"origin"`
	Tags   []string `json:"tags"`
}

// Broadcaster fans tag invalidations of a MemoryBackend out to every other
// instance subscribed to the same NATS subject. Local invalidation stays
// synchronous; peers converge as messages arrive.
type Broadcaster struct {
	backend *MemoryBackend
	pub     publisher
	subject string
	origin  string
	sub     *nats.Subscription
	logger  *zap.Logger
}

// DialNATS connects with bounded reconnect behaviour and fails fast on the first attempt.
func DialNATS(url string, maxReconnects int, reconnectWait time.Duration) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w", url, maxReconnects, reconnectWait, err)
	}
	return nc, nil
}

// AttachNATS subscribes backend to subject on nc and publishes its invalidations there.
func AttachNATS(backend *MemoryBackend, nc *nats.Conn, subject string, logger *zap.Logger) (*Broadcaster, error) {
	b := newBroadcaster(backend, nc, subject, logger)
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		b.handle(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.sub = sub
	backend.setInvalidationHook(b.publish)
	return b, nil
}

func newBroadcaster(backend *MemoryBackend, pub publisher, subject string, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		backend: backend,
		pub:     pub,
		subject: subject,
		origin:  uuid.NewString(),
		logger:  logging.OrNop(logger).Named("cache.nats"),
	}
}

// Close stops publishing and unsubscribes.
func (b *Broadcaster) Close() error {
	b.backend.setInvalidationHook(nil)
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}

func (b *Broadcaster) publish(_ context.Context, tags []string) {
	payload, err := json.Marshal(invalidationMessage{Origin: b.origin, Tags: tags})
	if err != nil {
		b.logger.Warn("encode invalidation", zap.Error(err))
		return
	}
	if err := b.pub.Publish(b.subject, payload); err != nil {
		b.logger.Warn("publish invalidation", zap.Strings("tags", tags), zap.Error(err))
	}
}

func (b *Broadcaster) handle(data []byte) {
	var msg invalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Warn("drop malformed invalidation", zap.Error(err))
		return
	}
	if msg.Origin == b.origin || len(msg.Tags) == 0 {
		return
	}
	b.backend.bump(msg.Tags)
}
