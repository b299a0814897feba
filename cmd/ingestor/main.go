// Command ingestor loads provider catalogs listed in a manifest into the
// providers table and announces the change to running API instances.
//
//	ingestor [manifest.json] [--retire]
//
// With --retire, live providers absent from every catalog are soft-deleted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	natsadapter "github.com/samirrijal/proxima/internal/adapters/nats"
	"github.com/samirrijal/proxima/internal/adapters/postgres"
	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/pkg/config"
	"github.com/samirrijal/proxima/internal/pkg/logging"
)

// Manifest lists the catalogs to ingest, in catalog order.
type Manifest struct {
	Source   string         `json:"source"`
	Catalogs []CatalogEntry `json:"catalogs"`
}

// CatalogEntry is one catalog file, local or remote.
type CatalogEntry struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Path   string `json:"path,omitempty"`
	Format string `json:"format"` // csv | json
}

const maxConcurrentFetches = 4

func main() {
	cfg, err := config.Load("proxima-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup("proxima-ingestor", cfg.Log.Level, cfg.Log.Format)

	manifestPath := "manifest.json"
	retire := false
	for _, arg := range os.Args[1:] {
		if arg == "--retire" {
			retire = true
		} else {
			manifestPath = arg
		}
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}
	logger.Info("ingesting provider catalogs", "catalogs", len(manifest.Catalogs), "source", manifest.Source)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	entities, err := fetchAll(ctx, manifest.Catalogs, logger)
	if err != nil {
		log.Fatalf("fetch catalogs: %v", err)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	repo := postgres.NewEntityRepo(db)

	written, err := repo.UpsertBatch(ctx, entities, 0)
	if err != nil {
		log.Fatalf("upsert providers (%d written): %v", written, err)
	}
	logger.Info("providers upserted", "count", written)

	if retire {
		ids := make([]string, len(entities))
		for i, e := range entities {
			ids[i] = e.ID
		}
		n, err := repo.RetireMissing(ctx, ids)
		if err != nil {
			log.Fatalf("retire: %v", err)
		}
		logger.Info("providers retired", "count", n)
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats unavailable, API instances refresh on cache expiry only", "error", err)
		return
	}
	defer pub.Close()
	if err := pub.PublishCatalogChanged(ctx); err != nil {
		logger.Warn("failed to announce catalog change", "error", err)
		return
	}
	logger.Info("ingestion complete")
}

// fetchAll reads every catalog concurrently and concatenates them in
// manifest order, keeping the first occurrence of a duplicated id.
func fetchAll(ctx context.Context, catalogs []CatalogEntry, logger *slog.Logger) ([]domain.LocatableEntity, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	results := make([][]domain.LocatableEntity, len(catalogs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, c := range catalogs {
		g.Go(func() error {
			data, err := readCatalog(gctx, client, c)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			entities, skipped, err := parseCatalog(data, c.Format)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			if skipped > 0 {
				logger.Warn("skipped catalog rows without id or name", "catalog", c.Name, "count", skipped)
			}
			results[i] = entities
			logger.Info("catalog read", "catalog", c.Name, "providers", len(entities))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []domain.LocatableEntity
	for i, entities := range results {
		for _, e := range entities {
			if seen[e.ID] {
				logger.Warn("duplicate provider id", "catalog", catalogs[i].Name, "id", e.ID)
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out, nil
}
