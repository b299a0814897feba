package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/usecases"
)

func TestCatalogService_LoadsOnceAndResolves(t *testing.T) {
	repo := staticRepo(
		domain.LocatableEntity{ID: "exact", ExactLocation: exact("-1.29", "36.82")},
		domain.LocatableEntity{ID: "region", RegionName: "KENYA"},
		domain.LocatableEntity{ID: "lost"},
	)
	svc := usecases.NewCatalogService(repo, usecases.NewLocationResolver(testCentroids()), nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Entities(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entities, version, err := svc.Entities(context.Background())
	require.NoError(t, err)
	assert.Zero(t, version)
	require.Len(t, entities, 3)
	assert.Equal(t, domain.PrecisionExact, entities[0].Precision)
	assert.Equal(t, domain.PrecisionRegion, entities[1].Precision)
	assert.Equal(t, domain.PrecisionUnknown, entities[2].Precision)
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestCatalogService_InvalidateReloads(t *testing.T) {
	repo := staticRepo(domain.LocatableEntity{ID: "a"})
	svc := usecases.NewCatalogService(repo, usecases.NewLocationResolver(nil), nil)

	notified := make(chan struct{}, 1)
	svc.OnChange(func(ctx context.Context) { notified <- struct{}{} })

	before, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, before.Fingerprint)

	svc.Invalidate(context.Background())
	select {
	case <-notified:
	case <-time.After(waitFor):
		t.Fatal("listener not notified")
	}
	assert.Equal(t, uint64(1), svc.Version())

	after, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), after.Version)
	assert.Equal(t, before.Fingerprint, after.Fingerprint, "same content, same fingerprint")
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestCatalogService_FingerprintTracksContent(t *testing.T) {
	var online atomic.Bool
	repo := &mockEntityRepo{listFn: func(ctx context.Context) ([]domain.LocatableEntity, error) {
		return []domain.LocatableEntity{{ID: "a", IsOnline: online.Load()}}, nil
	}}
	svc := usecases.NewCatalogService(repo, usecases.NewLocationResolver(nil), nil)

	before, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	online.Store(true)
	svc.Invalidate(context.Background())
	after, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
}

func TestCatalogService_ListenersDoNotBlockInvalidate(t *testing.T) {
	svc := usecases.NewCatalogService(staticRepo(), usecases.NewLocationResolver(nil), nil)

	release := make(chan struct{})
	listenerErr := make(chan error, 1)
	svc.OnChange(func(ctx context.Context) {
		<-release
		listenerErr <- ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		svc.Invalidate(ctx)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(waitFor):
		t.Fatal("Invalidate blocked on a slow listener")
	}

	// The caller's context ending must not cancel the listener's work.
	cancel()
	close(release)
	svc.Wait()
	assert.NoError(t, <-listenerErr)
}

func TestCatalogService_LoadError(t *testing.T) {
	repo := &mockEntityRepo{listFn: func(ctx context.Context) ([]domain.LocatableEntity, error) {
		return nil, errors.New("connection refused")
	}}
	svc := usecases.NewCatalogService(repo, usecases.NewLocationResolver(nil), nil)

	_, _, err := svc.Entities(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load catalog")

	// Failures are not cached.
	_, _, _ = svc.Entities(context.Background())
	assert.Equal(t, int32(2), repo.calls.Load())
}
