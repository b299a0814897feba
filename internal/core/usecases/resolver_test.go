package usecases_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/usecases"
	"github.com/samirrijal/proxima/internal/pkg/regions"
)

func testCentroids() *regions.Table {
	return regions.New([]regions.Entry{
		{Name: "South Africa", Lat: -30.5595, Lng: 22.9375, Aliases: []string{"za"}},
		{Name: "Kenya", Lat: -0.0236, Lng: 37.9062},
	})
}

func TestLocationResolver_ExactTakesPrecedence(t *testing.T) {
	r := usecases.NewLocationResolver(testCentroids())

	got := r.Resolve(domain.LocatableEntity{
		ID:            "p1",
		ExactLocation: exact(-33.92, 18.42),
		RegionName:    "Kenya",
	})

	assert.Equal(t, domain.PrecisionExact, got.Precision)
	require.NotNil(t, got.ResolvedLocation)
	assert.Equal(t, domain.GeoPoint{Lat: -33.92, Lng: 18.42}, *got.ResolvedLocation)
}

func TestLocationResolver_RegionFallbackIsNormalized(t *testing.T) {
	r := usecases.NewLocationResolver(testCentroids())

	got := r.Resolve(domain.LocatableEntity{ID: "p2", RegionName: " South AFRICA "})

	assert.Equal(t, domain.PrecisionRegion, got.Precision)
	require.NotNil(t, got.ResolvedLocation)
	assert.Equal(t, domain.GeoPoint{Lat: -30.5595, Lng: 22.9375}, *got.ResolvedLocation)
}

func TestLocationResolver_MalformedExactFallsBack(t *testing.T) {
	r := usecases.NewLocationResolver(testCentroids())

	tests := []struct {
		name string
		raw  *domain.RawPoint
	}{
		{"garbage string", exact("abc", 10)},
		{"latitude out of range", exact(95.0, 10.0)},
		{"longitude out of range", exact(10.0, -181.0)},
		{"missing longitude", exact(10.0, nil)},
		{"boolean", exact(true, 10.0)},
		{"blank string", exact("  ", "10")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(domain.LocatableEntity{ExactLocation: tt.raw, RegionName: "za"})
			assert.Equal(t, domain.PrecisionRegion, got.Precision)
		})
	}
}

func TestLocationResolver_NumericStrings(t *testing.T) {
	r := usecases.NewLocationResolver(nil)

	got := r.Resolve(domain.LocatableEntity{ExactLocation: exact(" -1.2921 ", "36.8219")})

	assert.Equal(t, domain.PrecisionExact, got.Precision)
	require.NotNil(t, got.ResolvedLocation)
	assert.InDelta(t, -1.2921, got.ResolvedLocation.Lat, 1e-9)
	assert.InDelta(t, 36.8219, got.ResolvedLocation.Lng, 1e-9)
}

func TestLocationResolver_Unknown(t *testing.T) {
	r := usecases.NewLocationResolver(testCentroids())

	for _, e := range []domain.LocatableEntity{
		{ID: "no data"},
		{ID: "unknown region", RegionName: "Atlantis"},
		{ID: "blank region", RegionName: "   "},
	} {
		got := r.Resolve(e)
		assert.Equal(t, domain.PrecisionUnknown, got.Precision, e.ID)
		assert.Nil(t, got.ResolvedLocation, e.ID)
		assert.False(t, got.Placeable(), e.ID)
	}
}

func TestLocationResolver_ResolveAllKeepsOrder(t *testing.T) {
	r := usecases.NewLocationResolver(testCentroids())

	got := r.ResolveAll([]domain.LocatableEntity{
		{ID: "a", RegionName: "kenya"},
		{ID: "b"},
		{ID: "c", ExactLocation: exact(1, 2)},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, []domain.LocationPrecision{domain.PrecisionRegion, domain.PrecisionUnknown, domain.PrecisionExact},
		[]domain.LocationPrecision{got[0].Precision, got[1].Precision, got[2].Precision})
}
