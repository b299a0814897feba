package geospatial

import "math"

const earthRadiusKm = 6371.0

// HaversineKm calculates the great-circle distance in kilometres between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	// rounding can push h a hair outside [0, 1] for antipodal points
	h = math.Min(1, math.Max(0, h))

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// IsValidCoordinate reports whether lat/lng are finite and within WGS 84 ranges.
func IsValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Centroid returns the arithmetic mean of the given coordinates.
// ok is false when lats and lngs are empty or of different length.
func Centroid(lats, lngs []float64) (lat, lng float64, ok bool) {
	if len(lats) == 0 || len(lats) != len(lngs) {
		return 0, 0, false
	}
	for i := range lats {
		lat += lats[i]
		lng += lngs[i]
	}
	n := float64(len(lats))
	return lat / n, lng / n, true
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
