package domain

import (
	"fmt"
	"time"
)

// ProfileName identifies an acquisition profile.
type ProfileName string

const (
	// ProfileFast is a coarse, cache-friendly fix used for region inference.
	ProfileFast ProfileName = "fast"
	// ProfilePrecise is a high accuracy, uncached fix used for ranking.
	ProfilePrecise ProfileName = "precise"
)

// AcquisitionProfile configures one way of asking the sensor for a fix.
type AcquisitionProfile struct {
	Name         ProfileName   `json:"name"`
	HighAccuracy bool          `json:"high_accuracy"`
	Timeout      time.Duration `json:"timeout"`
	MaxCacheAge  time.Duration `json:"max_cache_age"`
}

// AcquisitionPhase is the lifecycle of a profile's location request.
type AcquisitionPhase int

const (
	AcquisitionIdle AcquisitionPhase = iota
	AcquisitionAcquiring
	AcquisitionAcquired
	AcquisitionFailed
)

func (p AcquisitionPhase) String() string {
	switch p {
	case AcquisitionAcquiring:
		return "acquiring"
	case AcquisitionAcquired:
		return "acquired"
	case AcquisitionFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText encodes the phase by name.
func (p AcquisitionPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// AcquisitionState is the last known outcome of a profile's requests.
type AcquisitionState struct {
	Phase     AcquisitionPhase `json:"phase"`
	Location  *GeoPoint        `json:"location,omitempty"`
	Err       *LocationError   `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// LocationErrorCode classifies why a location could not be obtained.
type LocationErrorCode int

const (
	LocationUnavailable LocationErrorCode = iota
	LocationDenied
	LocationTimeout
	LocationUnsupported
)

func (c LocationErrorCode) String() string {
	switch c {
	case LocationDenied:
		return "denied"
	case LocationTimeout:
		return "timeout"
	case LocationUnsupported:
		return "unsupported"
	default:
		return "unavailable"
	}
}

// MarshalText encodes the code by name.
func (c LocationErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseLocationErrorCode maps a wire name back to a code. Unknown names are
// treated as unavailable.
func ParseLocationErrorCode(s string) LocationErrorCode {
	switch s {
	case "denied", "permission_denied":
		return LocationDenied
	case "timeout":
		return LocationTimeout
	case "unsupported":
		return LocationUnsupported
	default:
		return LocationUnavailable
	}
}

// LocationError is returned when the consumer's location cannot be acquired.
type LocationError struct {
	Code LocationErrorCode `json:"code"`
	Err  error             `json:"-"`
}

func (e *LocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location %s: %v", e.Code, e.Err)
	}
	return "location " + e.Code.String()
}

func (e *LocationError) Unwrap() error { return e.Err }

// Is matches any *LocationError with the same code, so callers can use
// errors.Is(err, domain.ErrLocationDenied).
func (e *LocationError) Is(target error) bool {
	t, ok := target.(*LocationError)
	return ok && t.Code == e.Code
}

var (
	ErrLocationDenied      = &LocationError{Code: LocationDenied}
	ErrLocationTimeout     = &LocationError{Code: LocationTimeout}
	ErrLocationUnsupported = &LocationError{Code: LocationUnsupported}
	ErrLocationUnavailable = &LocationError{Code: LocationUnavailable}
)
