package geospatial_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/proxima/internal/pkg/geospatial"
)

type point struct{ lat, lng float64 }

var samples = []point{
	{0, 0},
	{0, 1},
	{43.263, -2.935},
	{-33.9249, 18.4241},
	{51.5074, -0.1278},
	{90, 0},
	{-90, 180},
	{35.6762, 139.6503},
}

func TestHaversineKm_Symmetric(t *testing.T) {
	for _, a := range samples {
		for _, b := range samples {
			ab := geospatial.HaversineKm(a.lat, a.lng, b.lat, b.lng)
			ba := geospatial.HaversineKm(b.lat, b.lng, a.lat, a.lng)
			assert.InDelta(t, ab, ba, 1e-9, "a=%v b=%v", a, b)
			assert.GreaterOrEqual(t, ab, 0.0)
		}
	}
}

func TestHaversineKm_ZeroDistance(t *testing.T) {
	for _, p := range samples {
		assert.Equal(t, 0.0, geospatial.HaversineKm(p.lat, p.lng, p.lat, p.lng))
	}
}

func TestHaversineKm_OneDegreeAtEquator(t *testing.T) {
	d := geospatial.HaversineKm(0, 0, 0, 1)
	assert.InDelta(t, 111.19, d, 0.5)
}

func TestHaversineKm_Monotonic(t *testing.T) {
	prev := 0.0
	for lng := 1.0; lng <= 180; lng++ {
		d := geospatial.HaversineKm(0, 0, 0, lng)
		assert.Greater(t, d, prev, "lng=%v", lng)
		prev = d
	}
	assert.InDelta(t, math.Pi*6371, prev, 1e-6)
}

func TestIsValidCoordinate(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"origin", 0, 0, true},
		{"corners", -90, -180, true},
		{"upper corners", 90, 180, true},
		{"lat too high", 90.0001, 0, false},
		{"lng too low", 0, -180.5, false},
		{"nan", math.NaN(), 0, false},
		{"inf", 0, math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, geospatial.IsValidCoordinate(tt.lat, tt.lng))
		})
	}
}

func TestCentroid(t *testing.T) {
	lat, lng, ok := geospatial.Centroid([]float64{10, 20, 30}, []float64{-10, 0, 40})
	assert.True(t, ok)
	assert.InDelta(t, 20, lat, 1e-12)
	assert.InDelta(t, 10, lng, 1e-12)

	_, _, ok = geospatial.Centroid(nil, nil)
	assert.False(t, ok)
}
