package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/pkg/metrics"
	"github.com/samirrijal/proxima/internal/pkg/telemetry"
)

const rankedCacheTTL = 60 // seconds

// ProximityService ranks the current catalog against a consumer position and
// answers reverse region lookups.
type ProximityService struct {
	catalog   *CatalogService
	regions   ports.RegionIndex
	cache     ports.CacheService
	publisher ports.EventPublisher
	logger    *slog.Logger
}

// NewProximityService creates a new ProximityService. cache and publisher may be nil.
func NewProximityService(
	catalog *CatalogService,
	regions ports.RegionIndex,
	cache ports.CacheService,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) *ProximityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProximityService{
		catalog:   catalog,
		regions:   regions,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
	}
}

// Rank returns the full ranked catalog for consumer. A nil consumer yields
// the no-distance fallback order.
func (s *ProximityService) Rank(ctx context.Context, consumer *domain.GeoPoint) ([]domain.RankedEntity, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanRank)
	defer span.End()
	span.SetAttributes(attribute.Bool(telemetry.AttrHasConsumer, consumer != nil))

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cacheKey := rankedCacheKey(snap.Fingerprint, consumer)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var ranked []domain.RankedEntity
			if err := json.Unmarshal(data, &ranked); err == nil {
				metrics.CacheHits.WithLabelValues("ranked").Inc()
				return ranked, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("ranked").Inc()
	}

	start := time.Now()
	ranked := RankEntities(consumer, snap.Entities)
	metrics.RankingDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int(telemetry.AttrEntities, len(ranked)))

	if s.cache != nil {
		if data, err := json.Marshal(ranked); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, rankedCacheTTL)
		}
	}

	return ranked, nil
}

// rankedCacheKey identifies a ranking by catalog content and the exact
// consumer coordinate, so a hit is always the ranking these inputs produce.
func rankedCacheKey(fingerprint string, consumer *domain.GeoPoint) string {
	if consumer == nil {
		return "proximity:ranked:" + fingerprint + ":none"
	}
	return "proximity:ranked:" + fingerprint + ":" +
		strconv.FormatFloat(consumer.Lat, 'g', -1, 64) + ":" +
		strconv.FormatFloat(consumer.Lng, 'g', -1, 64)
}

// InferRegion returns the region whose centroid is nearest to p.
func (s *ProximityService) InferRegion(p domain.GeoPoint) (domain.RegionMatch, bool) {
	if s.regions == nil || !p.Valid() {
		return domain.RegionMatch{}, false
	}
	return s.regions.Nearest(p)
}

// RefreshCatalog invalidates the local catalog and announces the change to
// other instances.
func (s *ProximityService) RefreshCatalog(ctx context.Context) error {
	s.catalog.Invalidate(ctx)
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishCatalogChanged(ctx); err != nil {
		return fmt.Errorf("publish catalog change: %w", err)
	}
	return nil
}

// CatalogVersion returns the version of the catalog currently served.
func (s *ProximityService) CatalogVersion() uint64 {
	return s.catalog.Version()
}
