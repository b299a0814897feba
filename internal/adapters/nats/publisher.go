package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// Subjects used on the bus.
const (
	SubjectCatalogChanged = "catalog.entities.updated"
	SubjectViewportPrefix = "proximity.viewport."
	SubjectPresencePrefix = "providers.presence."
)

// CatalogChangedEvent is the payload of SubjectCatalogChanged. Origin
// identifies the publishing process.
type CatalogChangedEvent struct {
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// ViewportAppliedEvent is the payload published when a session's viewport moves.
type ViewportAppliedEvent struct {
	SessionID string               `json:"session_id"`
	State     domain.ViewportState `json:"state"`
	At        time.Time            `json:"at"`
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	origin string
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "CATALOG_EVENTS",
			Subjects:  []string{"catalog.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "VIEWPORT_EVENTS",
			Subjects:  []string{SubjectViewportPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.MemoryStorage,
		},
		{
			Name:      "PRESENCE_EVENTS",
			Subjects:  []string{SubjectPresencePrefix + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    10 * time.Minute,
			Storage:   nats.MemoryStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js, origin: uuid.NewString()}, nil
}

// PublishCatalogChanged announces that the provider catalog was modified.
func (p *Publisher) PublishCatalogChanged(ctx context.Context) error {
	data, err := json.Marshal(CatalogChangedEvent{Origin: p.origin, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectCatalogChanged, data, nats.Context(ctx))
	return err
}

// PublishViewportApplied records a programmatic viewport change of a session.
func (p *Publisher) PublishViewportApplied(ctx context.Context, sessionID string, state domain.ViewportState) error {
	data, err := json.Marshal(ViewportAppliedEvent{SessionID: sessionID, State: state, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectViewportPrefix+sessionID, data, nats.Context(ctx))
	return err
}

// PublishPresence forwards a provider heartbeat to the presence worker.
func (p *Publisher) PublishPresence(ctx context.Context, event domain.PresenceEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectPresencePrefix+event.ProviderID, data, nats.Context(ctx))
	return err
}

// Origin returns the id stamped on events from this publisher.
func (p *Publisher) Origin() string {
	return p.origin
}

// Connected reports whether the underlying connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection with the reconnect policy shared
// by publisher and subscriber.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
