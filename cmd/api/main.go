package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/proxima/internal/adapters/http"
	natsadapter "github.com/samirrijal/proxima/internal/adapters/nats"
	"github.com/samirrijal/proxima/internal/adapters/postgres"
	"github.com/samirrijal/proxima/internal/adapters/valkey"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/core/usecases"
	"github.com/samirrijal/proxima/internal/pkg/config"
	"github.com/samirrijal/proxima/internal/pkg/logging"
	"github.com/samirrijal/proxima/internal/pkg/regions"
	"github.com/samirrijal/proxima/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("proxima-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup("proxima-api", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolMetrics(ctx, 15*time.Second)

	// Region centroids
	table, err := regions.LoadFile(cfg.Regions.File, logger)
	if err != nil {
		log.Fatalf("regions: %v", err)
	}
	if cfg.Regions.Watch {
		go func() {
			if err := table.Watch(ctx, cfg.Regions.File, logger); err != nil {
				logger.Warn("region watcher stopped", "error", err)
			}
		}()
	}

	deps := &http.Dependencies{
		Regions:  table,
		Sessions: usecases.NewSessionRegistry(logger),
		MapSessions: http.MapSessionConfig{
			Profiles: profilesFromConfig(cfg.Acquisition),
			Viewport: viewportFromConfig(cfg.Viewport),
		},
		DB:       db,
		Logger:   logger,
		DocsPath: "api/openapi.yaml",
	}

	// Cache (optional)
	var cache ports.CacheService
	vk, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Password, cfg.Valkey.DB)
	if err != nil {
		logger.Warn("valkey unavailable, ranking uncached", "error", err)
	} else {
		defer vk.Close()
		cache = vk
		deps.Cache = vk
	}

	// NATS (optional)
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats unavailable, catalog changes stay local", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
		deps.Publisher = pub
		deps.Presence = pub
		deps.NATS = pub
	}

	catalog := usecases.NewCatalogService(postgres.NewEntityRepo(db), usecases.NewLocationResolver(table), logger)
	deps.Proximity = usecases.NewProximityService(catalog, table, cache, publisher, logger)
	catalog.OnChange(deps.Sessions.CatalogChanged)

	if publisher != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("catalog subscription unavailable", "error", err)
		} else {
			defer sub.Close()
			// RefreshCatalog already invalidated locally before publishing.
			sub.IgnoreOrigin(pub.Origin())
			err := sub.SubscribeCatalogChanges(ctx, func(ctx context.Context) error {
				catalog.Invalidate(ctx)
				return nil
			})
			if err != nil {
				logger.Warn("catalog subscription failed", "error", err)
			}
		}
	}

	// Server-side sensor
	sensor, err := sensorFromConfig(cfg.Sensor, logger)
	if err != nil {
		log.Fatalf("sensor: %v", err)
	}
	if sensor != nil {
		deps.Acquirer = usecases.NewGeolocationAcquirer(sensor, deps.MapSessions.Profiles, logger)
		logger.Info("server-side location sensor enabled", "backend", cfg.Sensor.Backend)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Proxima API",
	})
	app.Use(recover.New())
	app.Use(cors.New(corsConfig()))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received, draining connections", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	catalog.Wait()

	logger.Info("server stopped")
}
