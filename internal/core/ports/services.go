package ports

import (
	"context"
	"time"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// SensorRequest carries the acquisition knobs handed to a location sensor.
type SensorRequest struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCacheAge  time.Duration
}

// LocationSensor performs a single-shot request for the consumer's location.
// Implementations should return a *domain.LocationError when they can classify
// the failure.
type LocationSensor interface {
	RequestLocation(ctx context.Context, req SensorRequest) (domain.GeoPoint, error)
}

// CentroidTable resolves a region name to its centroid.
type CentroidTable interface {
	Lookup(name string) (domain.GeoPoint, bool)
}

// RegionIndex is a CentroidTable that can also answer reverse lookups.
type RegionIndex interface {
	CentroidTable
	Nearest(p domain.GeoPoint) (domain.RegionMatch, bool)
}

// MapRenderer is the external map widget driven by the viewport controller.
type MapRenderer interface {
	// IsReady reports whether the renderer can accept a viewport change now.
	IsReady() bool
	SetViewport(center domain.GeoPoint, zoom int) error
}

// ListSink receives ranked lists and region hints for display.
type ListSink interface {
	PushRanked(ranked []domain.RankedEntity) error
	PushRegion(match domain.RegionMatch) error
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishCatalogChanged(ctx context.Context) error
	PublishViewportApplied(ctx context.Context, sessionID string, state domain.ViewportState) error
}

// PresencePublisher forwards provider heartbeats to the presence worker.
type PresencePublisher interface {
	PublishPresence(ctx context.Context, event domain.PresenceEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeCatalogChanges(ctx context.Context, handler func(ctx context.Context) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
