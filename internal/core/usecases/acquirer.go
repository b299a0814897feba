package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/pkg/metrics"
	"github.com/samirrijal/proxima/internal/pkg/telemetry"
)

// ErrUnknownProfile is returned for a profile name that was never configured.
var ErrUnknownProfile = errors.New("unknown acquisition profile")

// DefaultProfiles returns the fast and precise acquisition profiles.
func DefaultProfiles() map[domain.ProfileName]domain.AcquisitionProfile {
	return map[domain.ProfileName]domain.AcquisitionProfile{
		domain.ProfileFast: {
			Name:         domain.ProfileFast,
			HighAccuracy: false,
			Timeout:      5 * time.Second,
			MaxCacheAge:  time.Hour,
		},
		domain.ProfilePrecise: {
			Name:         domain.ProfilePrecise,
			HighAccuracy: true,
			Timeout:      10 * time.Second,
			MaxCacheAge:  0,
		},
	}
}

// GeolocationAcquirer obtains the consumer's location from a sensor, keeping
// an independent state per profile. Concurrent requests for the same profile
// share one sensor call.
type GeolocationAcquirer struct {
	sensor   ports.LocationSensor
	profiles map[domain.ProfileName]domain.AcquisitionProfile
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	states map[domain.ProfileName]domain.AcquisitionState
}

// NewGeolocationAcquirer creates a new GeolocationAcquirer. A nil profiles
// map selects DefaultProfiles.
func NewGeolocationAcquirer(sensor ports.LocationSensor, profiles map[domain.ProfileName]domain.AcquisitionProfile, logger *slog.Logger) *GeolocationAcquirer {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeolocationAcquirer{
		sensor:   sensor,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
		states:   make(map[domain.ProfileName]domain.AcquisitionState, len(profiles)),
	}
}

// Profile returns a configured profile by name.
func (a *GeolocationAcquirer) Profile(name domain.ProfileName) (domain.AcquisitionProfile, bool) {
	p, ok := a.profiles[name]
	return p, ok
}

// State returns the current acquisition state of a profile.
func (a *GeolocationAcquirer) State(name domain.ProfileName) domain.AcquisitionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[name]
}

// States returns a snapshot of every profile's state.
func (a *GeolocationAcquirer) States() map[domain.ProfileName]domain.AcquisitionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[domain.ProfileName]domain.AcquisitionState, len(a.profiles))
	for name := range a.profiles {
		out[name] = a.states[name]
	}
	return out
}

// Fresh returns the profile's last fix if it is still inside the profile's
// cache window.
func (a *GeolocationAcquirer) Fresh(name domain.ProfileName) (domain.GeoPoint, bool) {
	profile, ok := a.profiles[name]
	if !ok || profile.MaxCacheAge <= 0 {
		return domain.GeoPoint{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.states[name]
	if st.Phase != domain.AcquisitionAcquired || st.Location == nil {
		return domain.GeoPoint{}, false
	}
	if a.now().Sub(st.UpdatedAt) > profile.MaxCacheAge {
		return domain.GeoPoint{}, false
	}
	return *st.Location, true
}

// Acquire returns the consumer's location for the given profile. Failures
// are *domain.LocationError values.
func (a *GeolocationAcquirer) Acquire(ctx context.Context, name domain.ProfileName) (domain.GeoPoint, error) {
	profile, ok := a.profiles[name]
	if !ok {
		return domain.GeoPoint{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	if p, ok := a.Fresh(name); ok {
		metrics.AcquisitionsTotal.WithLabelValues(string(name), "cached").Inc()
		return p, nil
	}

	// The shared call must outlive any single caller; it is bounded by the
	// profile timeout instead.
	ch := a.group.DoChan(string(name), func() (interface{}, error) {
		return a.request(context.WithoutCancel(ctx), profile)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.GeoPoint{}, res.Err
		}
		return res.Val.(domain.GeoPoint), nil
	case <-ctx.Done():
		return domain.GeoPoint{}, classifyLocationError(ctx.Err())
	}
}

func (a *GeolocationAcquirer) request(ctx context.Context, profile domain.AcquisitionProfile) (domain.GeoPoint, error) {
	a.setState(profile.Name, domain.AcquisitionState{Phase: domain.AcquisitionAcquiring})

	if profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, profile.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanAcquire)
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrProfile, string(profile.Name)),
		attribute.Bool(telemetry.AttrHighAccuracy, profile.HighAccuracy),
	)

	start := time.Now()
	p, err := a.sensor.RequestLocation(ctx, ports.SensorRequest{
		HighAccuracy: profile.HighAccuracy,
		Timeout:      profile.Timeout,
		MaxCacheAge:  profile.MaxCacheAge,
	})
	metrics.AcquisitionDuration.WithLabelValues(string(profile.Name)).Observe(time.Since(start).Seconds())

	if err == nil && !p.Valid() {
		err = &domain.LocationError{
			Code: domain.LocationUnavailable,
			Err:  fmt.Errorf("sensor returned out-of-range coordinate (%v, %v)", p.Lat, p.Lng),
		}
	}

	if err != nil {
		lerr := classifyLocationError(err)
		a.setState(profile.Name, domain.AcquisitionState{Phase: domain.AcquisitionFailed, Err: lerr})
		metrics.AcquisitionsTotal.WithLabelValues(string(profile.Name), lerr.Code.String()).Inc()
		span.RecordError(lerr)
		span.SetStatus(codes.Error, lerr.Code.String())
		a.logger.Warn("location acquisition failed",
			"profile", profile.Name, "code", lerr.Code.String(), "error", err)
		return domain.GeoPoint{}, lerr
	}

	a.setState(profile.Name, domain.AcquisitionState{Phase: domain.AcquisitionAcquired, Location: &p})
	metrics.AcquisitionsTotal.WithLabelValues(string(profile.Name), "acquired").Inc()
	span.SetAttributes(attribute.String(telemetry.AttrOutcome, "acquired"))
	a.logger.Debug("location acquired", "profile", profile.Name, "lat", p.Lat, "lng", p.Lng)
	return p, nil
}

func (a *GeolocationAcquirer) setState(name domain.ProfileName, st domain.AcquisitionState) {
	st.UpdatedAt = a.now()
	a.mu.Lock()
	a.states[name] = st
	a.mu.Unlock()
}

// classifyLocationError maps sensor and context errors onto the location
// error taxonomy.
func classifyLocationError(err error) *domain.LocationError {
	var lerr *domain.LocationError
	if errors.As(err, &lerr) {
		return lerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.LocationError{Code: domain.LocationTimeout, Err: err}
	}
	return &domain.LocationError{Code: domain.LocationUnavailable, Err: err}
}
