package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
)

// SessionDeps are the collaborators of a map session. Sink and Publisher are
// optional.
type SessionDeps struct {
	Acquirer  *GeolocationAcquirer
	Viewport  *ViewportController
	Proximity *ProximityService
	Sink      ports.ListSink
	Publisher ports.EventPublisher
	Logger    *slog.Logger
}

// SessionSnapshot is a point-in-time view of a session.
type SessionSnapshot struct {
	ID          string                                         `json:"id"`
	CreatedAt   time.Time                                      `json:"created_at"`
	Consumer    *domain.GeoPoint                               `json:"consumer,omitempty"`
	Region      *domain.RegionMatch                            `json:"region,omitempty"`
	Viewport    domain.ViewportState                           `json:"viewport"`
	Acquisition map[domain.ProfileName]domain.AcquisitionState `json:"acquisition"`
}

// Session ties one consumer's location acquisition to the ranked list and
// the map viewport shown to them.
type Session struct {
	id        string
	createdAt time.Time

	acquirer  *GeolocationAcquirer
	viewport  *ViewportController
	proximity *ProximityService
	sink      ports.ListSink
	publisher ports.EventPublisher
	logger    *slog.Logger

	mu            sync.Mutex
	consumer      *domain.GeoPoint
	consumerToken uint64
	region        *domain.RegionMatch
}

// NewSession creates a session with a fresh id. Applied viewports are
// published when a publisher is configured.
func NewSession(deps SessionDeps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		id:        id,
		createdAt: time.Now(),
		acquirer:  deps.Acquirer,
		viewport:  deps.Viewport,
		proximity: deps.Proximity,
		sink:      deps.Sink,
		publisher: deps.Publisher,
		logger:    logger.With("session_id", id),
	}
	if s.publisher != nil {
		s.viewport.OnApplied(func(st domain.ViewportState) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.publisher.PublishViewportApplied(ctx, s.id, st); err != nil {
				s.logger.Warn("failed to publish viewport", "error", err)
			}
		})
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start runs the opening sequence: a fast fix to hint the consumer's region
// and a precise fix that drives ranking and the viewport, concurrently.
// Only a ranking failure is returned.
func (s *Session) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.InferRegion(gctx)
		return nil
	})
	g.Go(func() error {
		_, err := s.Locate(gctx, domain.ProfilePrecise)
		return err
	})
	return g.Wait()
}

// InferRegion acquires a fast fix and pushes the nearest region to the sink.
func (s *Session) InferRegion(ctx context.Context) (domain.RegionMatch, bool) {
	p, err := s.acquirer.Acquire(ctx, domain.ProfileFast)
	if err != nil {
		s.logger.Debug("region inference skipped", "error", err)
		return domain.RegionMatch{}, false
	}
	match, ok := s.proximity.InferRegion(p)
	if !ok {
		return domain.RegionMatch{}, false
	}

	s.mu.Lock()
	s.region = &match
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.PushRegion(match); err != nil {
			s.logger.Warn("failed to push region", "error", err)
		}
	}
	return match, true
}

// Locate acquires the consumer location with the named profile, ranks the
// catalog and frames the map. A failed acquisition degrades to ranking
// without a consumer.
func (s *Session) Locate(ctx context.Context, profile domain.ProfileName) (ApplyOutcome, error) {
	if _, ok := s.acquirer.Profile(profile); !ok {
		return OutcomeIgnored, ErrUnknownProfile
	}
	token := s.viewport.BeginLocating()
	return s.locate(ctx, token, profile)
}

// Recenter returns control of the viewport to the application and frames the
// map around a new precise fix.
func (s *Session) Recenter(ctx context.Context) (ApplyOutcome, error) {
	token := s.viewport.Recenter()
	return s.locate(ctx, token, domain.ProfilePrecise)
}

func (s *Session) locate(ctx context.Context, token uint64, profile domain.ProfileName) (ApplyOutcome, error) {
	var consumer *domain.GeoPoint
	p, err := s.acquirer.Acquire(ctx, profile)
	switch {
	case err == nil:
		consumer = &p
	case errors.Is(err, ErrUnknownProfile):
		return OutcomeIgnored, err
	default:
		s.logger.Info("ranking without consumer location", "profile", profile, "error", err)
	}

	s.mu.Lock()
	if token >= s.consumerToken {
		s.consumer, s.consumerToken = consumer, token
	}
	s.mu.Unlock()

	ranked, err := s.proximity.Rank(ctx, consumer)
	if err != nil {
		return OutcomeIgnored, err
	}

	if s.viewport.IsCurrent(token) {
		s.push(ranked)
	}
	return s.viewport.Complete(ctx, token, consumer, ranked), nil
}

// CatalogChanged re-ranks for the last known consumer and lets a centered
// viewport follow the new data.
func (s *Session) CatalogChanged(ctx context.Context) error {
	s.mu.Lock()
	consumer := s.consumer
	s.mu.Unlock()

	ranked, err := s.proximity.Rank(ctx, consumer)
	if err != nil {
		return err
	}
	s.push(ranked)
	s.viewport.Refresh(ctx, consumer, ranked)
	return nil
}

// UserPan records a user pan gesture.
func (s *Session) UserPan(center domain.GeoPoint) { s.viewport.UserPan(center) }

// UserZoom records a user zoom gesture.
func (s *Session) UserZoom(zoom int) { s.viewport.UserZoom(zoom) }

// Snapshot returns the current session state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	snap := SessionSnapshot{
		ID:        s.id,
		CreatedAt: s.createdAt,
		Consumer:  s.consumer,
		Region:    s.region,
	}
	s.mu.Unlock()

	snap.Viewport = s.viewport.State()
	snap.Acquisition = s.acquirer.States()
	return snap
}

func (s *Session) push(ranked []domain.RankedEntity) {
	if s.sink == nil {
		return
	}
	if err := s.sink.PushRanked(ranked); err != nil {
		s.logger.Warn("failed to push ranked list", "error", err)
	}
}
