package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/migrate"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/registry"
	"github.com/foodbridge/foodbridge-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	drain := flag.Bool("drain", false, "relay the current backlog and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "loading config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg, *drain); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, drainOnly bool) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.Store, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeLogged(ctx, logg, "pubsub", pubsubClient.Close)

	routes, err := registry.NewRoutes(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("relay routes: %w", err)
	}
	relay, err := NewRelay(RelayParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Store:      outbox.NewRepository(dbClient.DB()),
		DeadLetter: outbox.NewDLQRepository(dbClient.DB()),
		Resolver:   routes,
	})
	if err != nil {
		return fmt.Errorf("outbox relay: %w", err)
	}

	if drainOnly {
		claimed, err := relay.Drain(ctx)
		logg.Info(logg.WithField(ctx, "claimed", claimed), "outbox backlog drained")
		return err
	}
	logg.Info(ctx, "outbox publisher ready")
	return relay.Run(ctx)
}

func closeLogged(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "closing "+what, err)
	}
}
