package usecases

import (
	"cmp"
	"math"
	"slices"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// RankEntities orders entities by distance to consumer (nearest first), then
// online before offline, then catalog order. Entities without a distance sort
// last. With no usable consumer coordinate no distances are computed and the
// order degrades to online-first catalog order.
func RankEntities(consumer *domain.GeoPoint, entities []domain.ResolvedEntity) []domain.RankedEntity {
	useDistance := consumer != nil && consumer.Valid()

	ranked := make([]domain.RankedEntity, len(entities))
	for i, e := range entities {
		ranked[i] = domain.RankedEntity{ResolvedEntity: e}
		if useDistance && e.Placeable() {
			d := consumer.DistanceKm(*e.ResolvedLocation)
			ranked[i].DistanceKm = &d
		}
	}

	slices.SortStableFunc(ranked, compareRanked)
	return ranked
}

func compareRanked(a, b domain.RankedEntity) int {
	if c := cmp.Compare(distanceOrInf(a), distanceOrInf(b)); c != 0 {
		return c
	}
	switch {
	case a.IsOnline && !b.IsOnline:
		return -1
	case !a.IsOnline && b.IsOnline:
		return 1
	}
	return 0
}

func distanceOrInf(e domain.RankedEntity) float64 {
	if e.DistanceKm == nil {
		return math.Inf(1)
	}
	return *e.DistanceKm
}

// MapPlacements returns the ranked entities that can be drawn on a map,
// keeping rank order.
func MapPlacements(ranked []domain.RankedEntity) []domain.RankedEntity {
	out := make([]domain.RankedEntity, 0, len(ranked))
	for _, e := range ranked {
		if e.Placeable() {
			out = append(out, e)
		}
	}
	return out
}
