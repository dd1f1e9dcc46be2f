package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/foodbridge/foodbridge-backend/internal/analytics/router"
	"github.com/foodbridge/foodbridge-backend/internal/analytics/types"
	"github.com/foodbridge/foodbridge-backend/internal/analytics/worker"
	"github.com/foodbridge/foodbridge-backend/internal/analytics/writer"
	"github.com/foodbridge/foodbridge-backend/pkg/bigquery"
	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/idempotency"
	"github.com/foodbridge/foodbridge-backend/pkg/pubsub"
	"github.com/foodbridge/foodbridge-backend/pkg/redis"
)

const serviceName = "analytics-worker"

func main() {
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

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

// run owns every client it opens and closes them in reverse order.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				logg.Error(ctx, "closing client", cerr)
			}
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	closers = append(closers, redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, cfg.PubSub.AnalyticsSubscription)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	closers = append(closers, pubsubClient.Close)
	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, bigquery.TableSpec{
		Name:           cfg.BigQuery.DonationEventsTable,
		Schema:         types.DonationEventSchema(),
		PartitionField: types.DonationEventPartition,
	})
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	closers = append(closers, bqClient.Close)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}

	sink, err := writer.New(bqClient, writer.Config{
		DonationEventsTable: cfg.BigQuery.DonationEventsTable,
		BatchSize:           cfg.BigQuery.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("bigquery writer: %w", err)
	}

	handler, err := router.NewRouter(sink, logg)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}

	service, err := worker.NewService(worker.Params{
		Subscription: subscription,
		Handler:      handler,
		Idempotency:  manager,
		Logger:       logg,
		Flusher:      sink,
		FlushEvery:   cfg.BigQuery.FlushInterval,
	})
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	logg.Info(ctx, "analytics worker ready")
	return service.Run(ctx)
}
