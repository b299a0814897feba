package usecases

import (
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
)

// LocationResolver picks the best-known coordinate for catalog entities:
// a valid exact location, else the centroid of a known region, else nothing.
type LocationResolver struct {
	centroids ports.CentroidTable
}

// NewLocationResolver creates a new LocationResolver.
func NewLocationResolver(centroids ports.CentroidTable) *LocationResolver {
	return &LocationResolver{centroids: centroids}
}

// Resolve annotates a single entity. It never fails: an entity without a
// usable coordinate comes back with PrecisionUnknown.
func (r *LocationResolver) Resolve(e domain.LocatableEntity) domain.ResolvedEntity {
	out := domain.ResolvedEntity{LocatableEntity: e, Precision: domain.PrecisionUnknown}

	if p, ok := parseRawPoint(e.ExactLocation); ok {
		out.ResolvedLocation = &p
		out.Precision = domain.PrecisionExact
		return out
	}

	if r.centroids != nil && strings.TrimSpace(e.RegionName) != "" {
		if p, ok := r.centroids.Lookup(e.RegionName); ok {
			out.ResolvedLocation = &p
			out.Precision = domain.PrecisionRegion
		}
	}
	return out
}

// ResolveAll resolves entities, preserving catalog order.
func (r *LocationResolver) ResolveAll(entities []domain.LocatableEntity) []domain.ResolvedEntity {
	out := make([]domain.ResolvedEntity, len(entities))
	for i, e := range entities {
		out[i] = r.Resolve(e)
	}
	return out
}

func parseRawPoint(raw *domain.RawPoint) (domain.GeoPoint, bool) {
	if raw == nil {
		return domain.GeoPoint{}, false
	}
	lat, ok := toFloat(raw.Lat)
	if !ok {
		return domain.GeoPoint{}, false
	}
	lng, ok := toFloat(raw.Lng)
	if !ok {
		return domain.GeoPoint{}, false
	}
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	return p, p.Valid()
}

// toFloat coerces catalog values ("12.5", 12, json.Number, ...) to float64.
// nil, booleans, blank strings and non-finite values are rejected.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case *string:
		if x == nil {
			return 0, false
		}
		return toFloat(*x)
	case *float64:
		if x == nil {
			return 0, false
		}
		return toFloat(*x)
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false
		}
		v = x
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
