//go:build integration
// +build integration

package http_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/proxima/internal/adapters/http"
	"github.com/samirrijal/proxima/internal/adapters/postgres"
	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/usecases"
	"github.com/samirrijal/proxima/internal/pkg/config"
)

// setupTestDB connects to the database named by the PROXIMA_DATABASE_* settings.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("proxima-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// setupTestDeps wires the HTTP layer to the real provider table, no cache.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	table := testRegions()
	catalog := usecases.NewCatalogService(postgres.NewEntityRepo(db), usecases.NewLocationResolver(table), nil)
	return &http.Dependencies{
		Proximity:   usecases.NewProximityService(catalog, table, nil, nil, nil),
		Regions:     table,
		Sessions:    usecases.NewSessionRegistry(nil),
		MapSessions: http.MapSessionConfig{Viewport: usecases.DefaultViewportConfig()},
		DB:          db,
	}
}

// seedProvider inserts a provider and removes it when the test ends.
func seedProvider(t *testing.T, db *postgres.DB, name string, lat, lng any, region string, online bool) string {
	id := uuid.NewString()
	if _, err := db.Pool.Exec(context.Background(), `
		INSERT INTO providers (id, name, lat, lng, region, is_online)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, id, name, lat, lng, region, online); err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM providers WHERE id = $1`, id)
	})
	return id
}

func TestRankedEntities_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	cape := seedProvider(t, db, "Integration Cape Town", "-33.92", "18.42", "", false)
	kenya := seedProvider(t, db, "Integration Nairobi", nil, nil, "kenya", true)
	// Unparseable coordinates fall back to the region.
	junk := seedProvider(t, db, "Integration Junk", "n/a", "", "South Africa", false)

	app := setupApp(setupTestDeps(t, db))

	var page rankedPage
	resp := do(t, app, "GET", "/v1/entities?lat=-33.9&lng=18.4&limit=200", &page)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	pos := map[string]int{}
	byID := map[string]domain.RankedEntity{}
	for i, e := range page.Data {
		pos[e.ID] = i
		byID[e.ID] = e
	}
	for _, id := range []string{cape, kenya, junk} {
		if _, ok := pos[id]; !ok {
			t.Fatalf("seeded provider %s missing from ranking", id)
		}
	}

	if !(pos[cape] < pos[junk] && pos[junk] < pos[kenya]) {
		t.Errorf("expected cape < junk < kenya, got %d, %d, %d", pos[cape], pos[junk], pos[kenya])
	}
	if byID[cape].Precision != domain.PrecisionExact {
		t.Errorf("expected exact precision, got %s", byID[cape].Precision)
	}
	if byID[junk].Precision != domain.PrecisionRegion {
		t.Errorf("expected region precision for junk coordinates, got %s", byID[junk].Precision)
	}
}

func TestReady_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	app := setupApp(setupTestDeps(t, db))

	resp := do(t, app, "GET", "/v1/ready", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
