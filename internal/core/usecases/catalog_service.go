package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/pkg/metrics"
	"github.com/samirrijal/proxima/internal/pkg/telemetry"
)

// CatalogSnapshot is one loaded generation of the resolved catalog.
// Fingerprint is derived from the content, so every instance that loaded
// the same catalog agrees on it regardless of its local Version.
type CatalogSnapshot struct {
	Entities    []domain.ResolvedEntity
	Version     uint64
	Fingerprint string
}

// CatalogService owns the resolved view of the provider catalog. Entities are
// loaded lazily from the repository and re-resolved after Invalidate.
type CatalogService struct {
	repo     ports.EntityRepository
	resolver *LocationResolver
	logger   *slog.Logger

	load singleflight.Group

	mu        sync.RWMutex
	snapshot  CatalogSnapshot
	loaded    bool
	version   uint64
	listeners []func(ctx context.Context)

	notifying sync.WaitGroup
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repo ports.EntityRepository, resolver *LocationResolver, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{repo: repo, resolver: resolver, logger: logger}
}

// Entities returns the resolved catalog and the version it belongs to.
// The returned slice must not be modified.
func (s *CatalogService) Entities(ctx context.Context) ([]domain.ResolvedEntity, uint64, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	return snap.Entities, snap.Version, nil
}

// Snapshot returns the current catalog generation, loading it if needed.
func (s *CatalogService) Snapshot(ctx context.Context) (CatalogSnapshot, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.snapshot, nil
	}
	version := s.version
	s.mu.RUnlock()

	v, err, _ := s.load.Do(fmt.Sprintf("catalog:%d", version), func() (interface{}, error) {
		return s.reload(ctx, version)
	})
	if err != nil {
		return CatalogSnapshot{}, err
	}
	return v.(CatalogSnapshot), nil
}

// Version returns the current catalog version.
func (s *CatalogService) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *CatalogService) reload(ctx context.Context, version uint64) (CatalogSnapshot, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanCatalogLoad)
	defer span.End()

	entities, err := s.repo.List(ctx)
	if err != nil {
		metrics.CatalogLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "list entities")
		return CatalogSnapshot{}, fmt.Errorf("load catalog: %w", err)
	}

	resolved := s.resolver.ResolveAll(entities)
	counts := map[domain.LocationPrecision]int{}
	for _, e := range resolved {
		counts[e.Precision]++
	}
	for _, p := range []domain.LocationPrecision{domain.PrecisionExact, domain.PrecisionRegion, domain.PrecisionUnknown} {
		metrics.EntitiesResolved.WithLabelValues(p.String()).Set(float64(counts[p]))
	}
	span.SetAttributes(attribute.Int(telemetry.AttrEntities, len(resolved)))

	fingerprint, err := fingerprintCatalog(resolved)
	if err != nil {
		return CatalogSnapshot{}, err
	}
	snap := CatalogSnapshot{Entities: resolved, Version: version, Fingerprint: fingerprint}

	s.mu.Lock()
	// An Invalidate during the load leaves the catalog unloaded.
	if s.version == version {
		s.snapshot = snap
		s.loaded = true
	}
	s.mu.Unlock()

	s.logger.Info("catalog loaded",
		"version", version,
		"fingerprint", fingerprint,
		"entities", len(resolved),
		"exact", counts[domain.PrecisionExact],
		"region", counts[domain.PrecisionRegion],
		"unresolved", counts[domain.PrecisionUnknown],
	)
	return snap, nil
}

func fingerprintCatalog(resolved []domain.ResolvedEntity) (string, error) {
	data, err := json.Marshal(resolved)
	if err != nil {
		return "", fmt.Errorf("fingerprint catalog: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12]), nil
}

// Invalidate drops the resolved catalog, bumps the version and notifies
// listeners in the background. The next read reloads from the repository.
// Listeners get a context that outlives ctx's cancellation.
func (s *CatalogService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.snapshot = CatalogSnapshot{}
	s.loaded = false
	s.version++
	version := s.version
	listeners := append([]func(context.Context){}, s.listeners...)
	s.mu.Unlock()

	s.logger.Info("catalog invalidated", "version", version)
	detached := context.WithoutCancel(ctx)
	for _, fn := range listeners {
		s.notifying.Add(1)
		go func() {
			defer s.notifying.Done()
			fn(detached)
		}()
	}
}

// Wait blocks until every running change listener has returned.
func (s *CatalogService) Wait() {
	s.notifying.Wait()
}

// OnChange registers fn to run after every Invalidate.
func (s *CatalogService) OnChange(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
