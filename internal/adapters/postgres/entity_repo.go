package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cast"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// EntityRepo implements ports.EntityRepository with pgx.
//
// Coordinates are stored as text exactly as providers submitted them;
// validation happens in the location resolver.
type EntityRepo struct {
	db *DB
}

// NewEntityRepo creates a new EntityRepo.
func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// List returns every provider in catalog order.
func (r *EntityRepo) List(ctx context.Context) ([]domain.LocatableEntity, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, lat, lng, COALESCE(region, ''), is_online, COALESCE(attributes, '{}')
		FROM providers
		WHERE deleted_at IS NULL
		ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}

	entities, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("scan providers: %w", err)
	}
	return entities, nil
}

func scanEntity(row pgx.CollectableRow) (domain.LocatableEntity, error) {
	var (
		e        domain.LocatableEntity
		lat, lng *string
	)
	if err := row.Scan(&e.ID, &e.Name, &lat, &lng, &e.RegionName, &e.IsOnline, &e.Attributes); err != nil {
		return e, err
	}
	if lat != nil || lng != nil {
		e.ExactLocation = &domain.RawPoint{Lat: textOrNil(lat), Lng: textOrNil(lng)}
	}
	return e, nil
}

func textOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

const upsertBatchSize = 500

// UpsertBatch writes entities in batches, assigning positions from
// firstPosition upward in slice order. Coordinates are stored as their text
// rendering, unvalidated. Upserted rows are undeleted.
func (r *EntityRepo) UpsertBatch(ctx context.Context, entities []domain.LocatableEntity, firstPosition int) (int, error) {
	batch := &pgx.Batch{}
	written := 0
	for i, e := range entities {
		var lat, lng any
		if e.ExactLocation != nil {
			lat, lng = rawText(e.ExactLocation.Lat), rawText(e.ExactLocation.Lng)
		}
		attrs := e.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}

		batch.Queue(`
			INSERT INTO providers (id, name, lat, lng, region, is_online, attributes, position)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			    region = EXCLUDED.region, is_online = EXCLUDED.is_online,
			    attributes = EXCLUDED.attributes, position = EXCLUDED.position,
			    deleted_at = NULL
		`, e.ID, e.Name, lat, lng, e.RegionName, e.IsOnline, attrs, firstPosition+i)

		if batch.Len() >= upsertBatchSize {
			if err := r.flush(ctx, batch); err != nil {
				return written, err
			}
			written += batch.Len()
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := r.flush(ctx, batch); err != nil {
			return written, err
		}
		written += batch.Len()
	}
	return written, nil
}

// RetireMissing soft-deletes every live provider whose id is not in keep.
func (r *EntityRepo) RetireMissing(ctx context.Context, keep []string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE providers SET deleted_at = now()
		WHERE deleted_at IS NULL AND NOT (id = ANY($1))
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("retire providers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetOnline applies presence flags, touching only rows whose flag differs.
func (r *EntityRepo) SetOnline(ctx context.Context, online map[string]bool) (int64, error) {
	if len(online) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(online))
	flags := make([]bool, 0, len(online))
	for id, on := range online {
		ids = append(ids, id)
		flags = append(flags, on)
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE providers p SET is_online = u.online
		FROM unnest($1::text[], $2::bool[]) AS u(id, online)
		WHERE p.id = u.id AND p.deleted_at IS NULL AND p.is_online IS DISTINCT FROM u.online
	`, ids, flags)
	if err != nil {
		return 0, fmt.Errorf("set provider presence: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EntityRepo) flush(ctx context.Context, batch *pgx.Batch) error {
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert provider %d: %w", i, err)
		}
	}
	return nil
}

// rawText renders a submitted coordinate member as text, keeping nil as NULL.
func rawText(v any) any {
	if v == nil {
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
