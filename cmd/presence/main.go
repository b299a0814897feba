// Command presence consumes provider heartbeats from NATS and keeps the
// is_online flag of the providers table current. Providers that stop
// sending heartbeats are marked offline after presence.ttl.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	natsadapter "github.com/samirrijal/proxima/internal/adapters/nats"
	"github.com/samirrijal/proxima/internal/adapters/postgres"
	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/usecases"
	"github.com/samirrijal/proxima/internal/pkg/config"
	"github.com/samirrijal/proxima/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load("proxima-presence")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup("proxima-presence", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer publisher.Close()

	subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL, logger)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer subscriber.Close()

	tracker := usecases.NewPresenceTracker(postgres.NewEntityRepo(db), publisher, cfg.Presence.TTL, logger)

	err = subscriber.SubscribePresence(ctx, func(_ context.Context, ev domain.PresenceEvent) error {
		if !tracker.Observe(ev) {
			logger.Debug("stale heartbeat dropped", "provider", ev.ProviderID)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe presence: %v", err)
	}

	logger.Info("presence worker started",
		"ttl", cfg.Presence.TTL,
		"flush_interval", cfg.Presence.FlushInterval,
	)
	tracker.Run(ctx, cfg.Presence.FlushInterval)
	logger.Info("presence worker stopped")
}
