package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger
	subs   []*nats.Subscription
	self   string
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string, logger *slog.Logger) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{conn: conn, js: js, logger: logger}, nil
}

// IgnoreOrigin makes SubscribeCatalogChanges skip events published with
// origin, normally this process's own Publisher.
func (s *Subscriber) IgnoreOrigin(origin string) {
	s.self = origin
}

// decodeCatalogChange parses a catalog event and reports whether it must be
// handled.
func decodeCatalogChange(data []byte, self string) (bool, error) {
	var event CatalogChangedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return false, err
	}
	return self == "" || event.Origin != self, nil
}

// SubscribeCatalogChanges calls handler for every catalog change published
// from now on. Each instance gets its own ephemeral consumer, so every
// instance sees every change.
func (s *Subscriber) SubscribeCatalogChanges(ctx context.Context, handler func(ctx context.Context) error) error {
	sub, err := s.js.Subscribe(SubjectCatalogChanged, func(msg *nats.Msg) {
		handle, err := decodeCatalogChange(msg.Data, s.self)
		if err != nil {
			s.logger.Warn("dropping malformed catalog event", "error", err)
			_ = msg.Term()
			return
		}
		if !handle {
			_ = msg.Ack()
			return
		}
		if err := handler(ctx); err != nil {
			s.logger.Error("catalog change handler failed", "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribePresence consumes provider heartbeats through a durable queue
// consumer shared by all presence workers, so each heartbeat is handled once.
func (s *Subscriber) SubscribePresence(ctx context.Context, handler func(ctx context.Context, event domain.PresenceEvent) error) error {
	sub, err := s.js.QueueSubscribe(SubjectPresencePrefix+">", "presence-workers", func(msg *nats.Msg) {
		var event domain.PresenceEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil || event.ProviderID == "" {
			s.logger.Warn("dropping malformed presence event", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, event); err != nil {
			s.logger.Error("presence handler failed", "provider", event.ProviderID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("presence-worker"),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(5),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
