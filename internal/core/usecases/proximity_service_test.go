package usecases_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/core/usecases"
)

func newTestProximity(cache *mockCache, pub *mockPublisher, entities ...domain.LocatableEntity) (*usecases.ProximityService, *mockEntityRepo) {
	repo := staticRepo(entities...)
	catalog := usecases.NewCatalogService(repo, usecases.NewLocationResolver(testCentroids()), nil)

	// Keep absent collaborators as untyped nils.
	var c ports.CacheService
	if cache != nil {
		c = cache
	}
	var p ports.EventPublisher
	if pub != nil {
		p = pub
	}
	return usecases.NewProximityService(catalog, testCentroids(), c, p, nil), repo
}

func TestProximityService_Rank(t *testing.T) {
	svc, _ := newTestProximity(nil, nil,
		domain.LocatableEntity{ID: "kenya", RegionName: "Kenya", IsOnline: true},
		domain.LocatableEntity{ID: "cape-town", ExactLocation: exact(-33.92, 18.42)},
		domain.LocatableEntity{ID: "nowhere", IsOnline: true},
	)

	ranked, err := svc.Rank(context.Background(), pt(-33.9, 18.4))

	require.NoError(t, err)
	assert.Equal(t, []string{"cape-town", "kenya", "nowhere"}, ids(ranked))
	require.NotNil(t, ranked[0].DistanceKm)
	assert.Less(t, *ranked[0].DistanceKm, 5.0)
}

func TestProximityService_RankUsesCache(t *testing.T) {
	cache := newMockCache()
	svc, repo := newTestProximity(cache, nil,
		domain.LocatableEntity{ID: "a", ExactLocation: exact(1, 1)},
		domain.LocatableEntity{ID: "b", ExactLocation: exact(2, 2), IsOnline: true},
	)

	first, err := svc.Rank(context.Background(), pt(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.Rank(context.Background(), pt(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets, "same consumer hits the same key")
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, domain.PrecisionExact, second[0].Precision)
	assert.Equal(t, int32(1), repo.calls.Load())

	_, err = svc.Rank(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets)
}

func TestProximityService_NearbyConsumersGetTheirOwnDistances(t *testing.T) {
	cache := newMockCache()
	svc, _ := newTestProximity(cache, nil,
		domain.LocatableEntity{ID: "here", ExactLocation: exact(0, 0.001)},
	)

	near, err := svc.Rank(context.Background(), pt(0, 0.00104))
	require.NoError(t, err)
	require.NotNil(t, near[0].DistanceKm)
	assert.Greater(t, *near[0].DistanceKm, 0.004)

	onTop, err := svc.Rank(context.Background(), pt(0, 0.001))
	require.NoError(t, err)
	require.NotNil(t, onTop[0].DistanceKm)
	assert.InDelta(t, 0, *onTop[0].DistanceKm, 1e-9)
}

func TestProximityService_SharedCacheFollowsCatalogContent(t *testing.T) {
	cache := newMockCache()
	var online atomic.Bool
	repo := &mockEntityRepo{listFn: func(ctx context.Context) ([]domain.LocatableEntity, error) {
		return []domain.LocatableEntity{
			{ID: "a", ExactLocation: exact(1, 1), IsOnline: online.Load()},
		}, nil
	}}
	newInstance := func() *usecases.ProximityService {
		catalog := usecases.NewCatalogService(repo, usecases.NewLocationResolver(testCentroids()), nil)
		return usecases.NewProximityService(catalog, testCentroids(), cache, nil, nil)
	}

	first := newInstance()
	ranked, err := first.Rank(context.Background(), pt(0, 0))
	require.NoError(t, err)
	assert.False(t, ranked[0].IsOnline)

	// Another instance with the same catalog reuses the entry.
	twin := newInstance()
	_, err = twin.Rank(context.Background(), pt(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// The catalog changes; a freshly started instance shares version 0 but
	// must not be served the ranking of the old content.
	online.Store(true)
	restarted := newInstance()
	ranked, err = restarted.Rank(context.Background(), pt(0, 0))
	require.NoError(t, err)
	assert.True(t, ranked[0].IsOnline)
	assert.Equal(t, 2, cache.sets)
}

func TestProximityService_InferRegion(t *testing.T) {
	svc, _ := newTestProximity(nil, nil)

	match, ok := svc.InferRegion(domain.GeoPoint{Lat: -33.9, Lng: 18.4})
	require.True(t, ok)
	assert.Equal(t, "South Africa", match.Name)
	assert.Greater(t, match.DistanceKm, 0.0)

	_, ok = svc.InferRegion(domain.GeoPoint{Lat: 200, Lng: 0})
	assert.False(t, ok)
}

func TestProximityService_RefreshCatalog(t *testing.T) {
	pub := &mockPublisher{}
	svc, repo := newTestProximity(nil, pub, domain.LocatableEntity{ID: "a"})

	_, err := svc.Rank(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, svc.RefreshCatalog(context.Background()))
	assert.Equal(t, int32(1), pub.catalogChanged.Load())
	assert.Equal(t, uint64(1), svc.CatalogVersion())

	_, err = svc.Rank(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())
}
