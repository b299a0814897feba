package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
)

// --- Mock LocationSensor ---

type mockSensor struct {
	calls     atomic.Int32
	requestFn func(ctx context.Context, req ports.SensorRequest) (domain.GeoPoint, error)
}

func (m *mockSensor) RequestLocation(ctx context.Context, req ports.SensorRequest) (domain.GeoPoint, error) {
	m.calls.Add(1)
	if m.requestFn != nil {
		return m.requestFn(ctx, req)
	}
	return domain.GeoPoint{}, domain.ErrLocationUnsupported
}

func fixedSensor(p domain.GeoPoint) *mockSensor {
	return &mockSensor{requestFn: func(ctx context.Context, req ports.SensorRequest) (domain.GeoPoint, error) {
		return p, nil
	}}
}

// --- Mock MapRenderer ---

type mockRenderer struct {
	isReadyFn func() bool
	setFn     func(center domain.GeoPoint, zoom int) error

	mu    sync.Mutex
	calls []domain.Viewport
}

func (m *mockRenderer) IsReady() bool {
	if m.isReadyFn != nil {
		return m.isReadyFn()
	}
	return true
}

func (m *mockRenderer) SetViewport(center domain.GeoPoint, zoom int) error {
	if m.setFn != nil {
		if err := m.setFn(center, zoom); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.calls = append(m.calls, domain.Viewport{Center: center, Zoom: zoom})
	m.mu.Unlock()
	return nil
}

func (m *mockRenderer) applied() []domain.Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Viewport(nil), m.calls...)
}

// --- Mock ListSink ---

type mockSink struct {
	mu      sync.Mutex
	ranked  [][]domain.RankedEntity
	regions []domain.RegionMatch
}

func (m *mockSink) PushRanked(ranked []domain.RankedEntity) error {
	m.mu.Lock()
	m.ranked = append(m.ranked, ranked)
	m.mu.Unlock()
	return nil
}

func (m *mockSink) PushRegion(match domain.RegionMatch) error {
	m.mu.Lock()
	m.regions = append(m.regions, match)
	m.mu.Unlock()
	return nil
}

func (m *mockSink) lastRanked() []domain.RankedEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ranked) == 0 {
		return nil
	}
	return m.ranked[len(m.ranked)-1]
}

// --- Mock EntityRepository ---

type mockEntityRepo struct {
	calls  atomic.Int32
	listFn func(ctx context.Context) ([]domain.LocatableEntity, error)
}

func (m *mockEntityRepo) List(ctx context.Context) ([]domain.LocatableEntity, error) {
	m.calls.Add(1)
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func staticRepo(entities ...domain.LocatableEntity) *mockEntityRepo {
	return &mockEntityRepo{listFn: func(ctx context.Context) ([]domain.LocatableEntity, error) {
		return entities, nil
	}}
}

// --- Mock CacheService ---

var errCacheMiss = errors.New("cache miss")

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	catalogChanged atomic.Int32

	mu      sync.Mutex
	applied []domain.ViewportState
}

func (m *mockPublisher) PublishCatalogChanged(ctx context.Context) error {
	m.catalogChanged.Add(1)
	return nil
}

func (m *mockPublisher) PublishViewportApplied(ctx context.Context, sessionID string, state domain.ViewportState) error {
	m.mu.Lock()
	m.applied = append(m.applied, state)
	m.mu.Unlock()
	return nil
}

func (m *mockPublisher) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

// --- helpers ---

func exact(lat, lng any) *domain.RawPoint {
	return &domain.RawPoint{Lat: lat, Lng: lng}
}

func resolved(id string, p *domain.GeoPoint, online bool) domain.ResolvedEntity {
	e := domain.ResolvedEntity{
		LocatableEntity:  domain.LocatableEntity{ID: id, Name: id, IsOnline: online},
		ResolvedLocation: p,
		Precision:        domain.PrecisionUnknown,
	}
	if p != nil {
		e.Precision = domain.PrecisionExact
	}
	return e
}

func pt(lat, lng float64) *domain.GeoPoint {
	return &domain.GeoPoint{Lat: lat, Lng: lng}
}

const waitFor = 2 * time.Second

// --- Mock PresenceRepository ---

type mockPresenceRepo struct {
	mu      sync.Mutex
	batches []map[string]bool
	setFn   func(online map[string]bool) (int64, error)
}

func (m *mockPresenceRepo) SetOnline(ctx context.Context, online map[string]bool) (int64, error) {
	m.mu.Lock()
	m.batches = append(m.batches, online)
	m.mu.Unlock()
	if m.setFn != nil {
		return m.setFn(online)
	}
	return int64(len(online)), nil
}
