package http

import (
	"context"
	"log/slog"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/core/usecases"
	"github.com/samirrijal/proxima/internal/pkg/regions"
)

// Pinger is a backing service that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity reports whether a broker connection is up.
type Connectivity interface {
	Connected() bool
}

// MapSessionConfig configures the WebSocket map sessions. Profiles apply
// when the connected client is asked for its own position.
type MapSessionConfig struct {
	Profiles map[domain.ProfileName]domain.AcquisitionProfile
	Viewport usecases.ViewportConfig
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Proximity *usecases.ProximityService
	Regions   *regions.Table
	// Acquirer wraps the server-side sensor. It serves POST /v1/locate and
	// locates map sessions; when nil, map clients report their own position.
	Acquirer    *usecases.GeolocationAcquirer
	Sessions    *usecases.SessionRegistry
	MapSessions MapSessionConfig
	Publisher   ports.EventPublisher
	Presence    ports.PresencePublisher

	DB    Pinger
	Cache Pinger
	NATS  Connectivity

	Logger *slog.Logger
	// DocsPath is the OpenAPI document served under /docs.
	DocsPath string
}
