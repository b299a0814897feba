package ports

import (
	"context"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// EntityRepository reads the provider catalog.
type EntityRepository interface {
	// List returns every catalog entity in catalog order.
	List(ctx context.Context) ([]domain.LocatableEntity, error)
}

// PresenceRepository updates the online flag of catalog entities.
type PresenceRepository interface {
	// SetOnline applies the flags and returns how many rows actually changed.
	SetOnline(ctx context.Context, online map[string]bool) (int64, error)
}
