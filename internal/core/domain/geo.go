package domain

import "github.com/samirrijal/proxima/internal/pkg/geospatial"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the WGS 84 coordinate ranges.
func (p GeoPoint) Valid() bool {
	return geospatial.IsValidCoordinate(p.Lat, p.Lng)
}

// DistanceKm returns the great-circle distance to other in kilometres.
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	return geospatial.HaversineKm(p.Lat, p.Lng, other.Lat, other.Lng)
}

// RawPoint is an entity coordinate as delivered by the catalog, before any
// numeric coercion. Fields may hold numbers, numeric strings, nil or garbage.
type RawPoint struct {
	Lat any `json:"lat"`
	Lng any `json:"lng"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// RegionMatch is the result of inferring a consumer's region from a coordinate.
type RegionMatch struct {
	Name       string   `json:"name"`
	Centroid   GeoPoint `json:"centroid"`
	DistanceKm float64  `json:"distance_km"`
}
