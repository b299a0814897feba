// Package sensor holds server-side location sensors: the Google
// Geolocation API, a serial NMEA GPS receiver and a fixed coordinate.
package sensor

import (
	"context"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
)

// Fixed always reports the same coordinate. Useful for development and for
// deployments pinned to one site.
type Fixed struct {
	point domain.GeoPoint
}

// NewFixed creates a Fixed sensor.
func NewFixed(lat, lng float64) *Fixed {
	return &Fixed{point: domain.GeoPoint{Lat: lat, Lng: lng}}
}

func (f *Fixed) RequestLocation(ctx context.Context, _ ports.SensorRequest) (domain.GeoPoint, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeoPoint{}, err
	}
	if !f.point.Valid() {
		return domain.GeoPoint{}, domain.ErrLocationUnsupported
	}
	return f.point, nil
}
