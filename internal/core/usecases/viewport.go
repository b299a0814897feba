package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/pkg/geospatial"
	"github.com/samirrijal/proxima/internal/pkg/metrics"
	"github.com/samirrijal/proxima/internal/pkg/telemetry"
)

var (
	// ErrStaleViewportUpdate marks an apply attempt superseded by a newer
	// request, a newer update or a user interaction.
	ErrStaleViewportUpdate = errors.New("viewport update superseded")
	// ErrViewportApplyAbandoned is logged when the renderer never became
	// ready within the retry budget.
	ErrViewportApplyAbandoned = errors.New("viewport apply abandoned")

	errRendererNotReady = errors.New("map renderer not ready")
)

// ApplyOutcome reports what happened to a programmatic viewport update.
type ApplyOutcome int

const (
	OutcomeApplied ApplyOutcome = iota
	OutcomeSuppressed
	OutcomeStale
	OutcomeAbandoned
	OutcomeIgnored
)

func (o ApplyOutcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeStale:
		return "stale"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "ignored"
	}
}

// MarshalText encodes the outcome by name.
func (o ApplyOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ViewportConfig holds the zoom step function, fallbacks and the renderer
// readiness retry budget.
type ViewportConfig struct {
	DefaultCenter domain.GeoPoint
	ZoomClose     int
	ZoomMedium    int
	ZoomWide      int
	ZoomWorld     int
	// SeveralMax is the largest entity count still framed at ZoomMedium.
	SeveralMax int

	ApplyMaxRetries      uint64
	ApplyInitialInterval time.Duration
	ApplyMaxInterval     time.Duration
	ApplyMaxElapsed      time.Duration
}

// DefaultViewportConfig returns the built-in viewport settings.
func DefaultViewportConfig() ViewportConfig {
	return ViewportConfig{
		DefaultCenter:        domain.GeoPoint{Lat: 20, Lng: 0},
		ZoomClose:            14,
		ZoomMedium:           11,
		ZoomWide:             5,
		ZoomWorld:            2,
		SeveralMax:           10,
		ApplyMaxRetries:      8,
		ApplyInitialInterval: 50 * time.Millisecond,
		ApplyMaxInterval:     time.Second,
		ApplyMaxElapsed:      10 * time.Second,
	}
}

// ComputeViewportTarget derives where the map should look. A known consumer
// is the center, zoomed by how many entities are placeable; otherwise the
// mean of the placeable entities at wide zoom; otherwise the global default.
func ComputeViewportTarget(consumer *domain.GeoPoint, ranked []domain.RankedEntity, cfg ViewportConfig) domain.Viewport {
	placeable := MapPlacements(ranked)

	if consumer != nil && consumer.Valid() {
		zoom := cfg.ZoomWide
		switch n := len(placeable); {
		case n == 1:
			zoom = cfg.ZoomClose
		case n > 1 && n <= cfg.SeveralMax:
			zoom = cfg.ZoomMedium
		}
		return domain.Viewport{Center: *consumer, Zoom: zoom}
	}

	if len(placeable) > 0 {
		lats := make([]float64, len(placeable))
		lngs := make([]float64, len(placeable))
		for i, e := range placeable {
			lats[i] = e.ResolvedLocation.Lat
			lngs[i] = e.ResolvedLocation.Lng
		}
		lat, lng, _ := geospatial.Centroid(lats, lngs)
		return domain.Viewport{Center: domain.GeoPoint{Lat: lat, Lng: lng}, Zoom: cfg.ZoomWide}
	}

	return domain.Viewport{Center: cfg.DefaultCenter, Zoom: cfg.ZoomWorld}
}

// ViewportController keeps a map viewport in step with the ranked data
// without fighting the user. Requests are tokens handed out by BeginLocating
// and Recenter; applies carry monotonically increasing update ids, and an
// apply is dropped as soon as a newer request, update or user gesture exists.
type ViewportController struct {
	renderer ports.MapRenderer
	cfg      ViewportConfig
	logger   *slog.Logger

	mu        sync.Mutex
	state     domain.ViewportState
	requested uint64 // latest request token
	completed uint64 // latest request token whose data was delivered
	issued    uint64 // latest update id handed to apply
	onApplied func(domain.ViewportState)
}

// NewViewportController creates a controller in the Idle phase, centered on
// the configured default.
func NewViewportController(renderer ports.MapRenderer, cfg ViewportConfig, logger *slog.Logger) *ViewportController {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewportController{
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		state: domain.ViewportState{
			Phase:  domain.ViewportIdle,
			Center: cfg.DefaultCenter,
			Zoom:   cfg.ZoomWorld,
		},
	}
}

// OnApplied registers a callback invoked after every successful apply.
func (c *ViewportController) OnApplied(fn func(domain.ViewportState)) {
	c.mu.Lock()
	c.onApplied = fn
	c.mu.Unlock()
}

// State returns a copy of the current viewport state.
func (c *ViewportController) State() domain.ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BeginLocating records a new location request and returns its token.
// The viewport itself does not move. A user in control stays in control.
func (c *ViewportController) BeginLocating() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested++
	if c.state.Phase != domain.ViewportUserInteracting {
		c.state.Phase = domain.ViewportLocating
	}
	return c.requested
}

// IsCurrent reports whether token belongs to the latest location request.
func (c *ViewportController) IsCurrent(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return token == c.requested
}

// Complete delivers the data for request token and applies the resulting
// viewport exactly once, unless the request is stale or the user is in
// control. Later deliveries for the same token are ignored.
func (c *ViewportController) Complete(ctx context.Context, token uint64, consumer *domain.GeoPoint, ranked []domain.RankedEntity) ApplyOutcome {
	c.mu.Lock()
	if latest := c.requested; token < latest {
		c.mu.Unlock()
		c.logger.Debug("discarding stale location result", "token", token, "latest", latest)
		return c.record(OutcomeStale)
	}
	if token <= c.completed {
		c.mu.Unlock()
		return c.record(OutcomeIgnored)
	}
	c.completed = token
	if c.state.UserIsInteracting {
		c.mu.Unlock()
		return c.record(OutcomeSuppressed)
	}
	target := ComputeViewportTarget(consumer, ranked, c.cfg)
	c.issued++
	id := c.issued
	c.mu.Unlock()

	return c.apply(ctx, id, token, target)
}

// Refresh re-applies the viewport after the ranked data changed under the
// current request. Only a Centered viewport follows data changes.
func (c *ViewportController) Refresh(ctx context.Context, consumer *domain.GeoPoint, ranked []domain.RankedEntity) ApplyOutcome {
	c.mu.Lock()
	if c.state.Phase != domain.ViewportCentered {
		c.mu.Unlock()
		return c.record(OutcomeIgnored)
	}
	target := ComputeViewportTarget(consumer, ranked, c.cfg)
	c.issued++
	id, token := c.issued, c.requested
	c.mu.Unlock()

	return c.apply(ctx, id, token, target)
}

// UserPan hands control to the user. center may be the zero value when the
// renderer does not report it.
func (c *ViewportController) UserPan(center domain.GeoPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.takeOverLocked()
	if center != (domain.GeoPoint{}) && center.Valid() {
		c.state.Center = center
	}
}

// UserZoom hands control to the user. A non-positive zoom is ignored.
func (c *ViewportController) UserZoom(zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.takeOverLocked()
	if zoom > 0 {
		c.state.Zoom = zoom
	}
}

func (c *ViewportController) takeOverLocked() {
	c.state.UserIsInteracting = true
	c.state.Phase = domain.ViewportUserInteracting
	// invalidate every pending apply of this episode
	c.issued++
}

// Recenter is the explicit user request to follow the data again. It returns
// the token for the location request that must follow.
func (c *ViewportController) Recenter() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.UserIsInteracting = false
	c.state.Phase = domain.ViewportLocating
	c.requested++
	c.issued++
	return c.requested
}

func (c *ViewportController) supersededLocked(id, token uint64) bool {
	return id != c.issued || token < c.requested || c.state.UserIsInteracting
}

func (c *ViewportController) apply(ctx context.Context, id, token uint64, target domain.Viewport) ApplyOutcome {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanViewportApply)
	defer span.End()
	span.SetAttributes(attribute.Int64(telemetry.AttrUpdateID, int64(id)))

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.ApplyInitialInterval
	eb.MaxInterval = c.cfg.ApplyMaxInterval
	eb.MaxElapsedTime = c.cfg.ApplyMaxElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.cfg.ApplyMaxRetries), ctx)

	var applied domain.ViewportState
	var onApplied func(domain.ViewportState)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if attempts > 1 {
			metrics.ViewportRendererRetries.Inc()
		}

		c.mu.Lock()
		stale := c.supersededLocked(id, token)
		c.mu.Unlock()
		if stale {
			return backoff.Permanent(ErrStaleViewportUpdate)
		}
		if !c.renderer.IsReady() {
			return errRendererNotReady
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.supersededLocked(id, token) {
			return backoff.Permanent(ErrStaleViewportUpdate)
		}
		if err := c.renderer.SetViewport(target.Center, target.Zoom); err != nil {
			return err
		}
		c.state.Center = target.Center
		c.state.Zoom = target.Zoom
		c.state.LastProgrammaticUpdateID = id
		c.state.Phase = domain.ViewportCentered
		applied, onApplied = c.state, c.onApplied
		return nil
	}, policy)

	switch {
	case err == nil:
		span.SetAttributes(attribute.String(telemetry.AttrOutcome, OutcomeApplied.String()))
		c.logger.Debug("viewport applied",
			"update_id", id, "lat", target.Center.Lat, "lng", target.Center.Lng, "zoom", target.Zoom, "attempts", attempts)
		if onApplied != nil {
			onApplied(applied)
		}
		return c.record(OutcomeApplied)
	case errors.Is(err, ErrStaleViewportUpdate):
		c.logger.Debug("viewport update superseded", "update_id", id)
		return c.record(OutcomeStale)
	default:
		c.mu.Lock()
		if !c.supersededLocked(id, token) && c.state.Phase == domain.ViewportLocating {
			// Nothing moved: fall back to the last state the map actually shows.
			if c.state.LastProgrammaticUpdateID > 0 {
				c.state.Phase = domain.ViewportCentered
			} else {
				c.state.Phase = domain.ViewportIdle
			}
		}
		c.mu.Unlock()
		c.logger.Warn("viewport apply abandoned",
			"update_id", id, "attempts", attempts, "error", errors.Join(ErrViewportApplyAbandoned, err))
		return c.record(OutcomeAbandoned)
	}
}

func (c *ViewportController) record(o ApplyOutcome) ApplyOutcome {
	metrics.ViewportApplies.WithLabelValues(o.String()).Inc()
	return o
}
