package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/foodbridge/foodbridge-backend/api/routes"
	"github.com/foodbridge/foodbridge-backend/internal/analytics"
	"github.com/foodbridge/foodbridge-backend/internal/dashboard"
	"github.com/foodbridge/foodbridge-backend/internal/donations"
	"github.com/foodbridge/foodbridge-backend/internal/livesync"
	"github.com/foodbridge/foodbridge-backend/internal/matches"
	"github.com/foodbridge/foodbridge-backend/internal/notifications"
	"github.com/foodbridge/foodbridge-backend/internal/profiles"
	"github.com/foodbridge/foodbridge-backend/internal/ratings"
	"github.com/foodbridge/foodbridge-backend/pkg/bigquery"
	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/instance"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/metrics"
	"github.com/foodbridge/foodbridge-backend/pkg/migrate"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/idempotency"
	"github.com/foodbridge/foodbridge-backend/pkg/pubsub"
	"github.com/foodbridge/foodbridge-backend/pkg/push"
	"github.com/foodbridge/foodbridge-backend/pkg/redis"
)

const (
	shutdownTimeout = 10 * time.Second
	// high-water marks idle this long are forgotten by the hub
	hubMarkTTL   = time.Hour
	hubPruneTick = 10 * time.Minute
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.Store, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	instanceID := instance.GetID()
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()
	subscriptionName, err := pubsubClient.EnsureInstanceSubscription(ctx, cfg.PubSub.LiveSyncTopic, cfg.PubSub.LiveSyncSubscription, instanceID)
	requireResource(ctx, logg, "live sync subscription", err)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, bigquery.TableSpec{Name: cfg.BigQuery.DonationEventsTable})
	requireResource(ctx, logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "error closing bigquery client", err)
		}
	}()

	reg := prometheus.DefaultRegisterer
	timeout := dbClient.Timeout()
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	profileService, err := profiles.NewService(profiles.NewRepository(dbClient.DB(), timeout), dbClient)
	requireResource(ctx, logg, "profiles service", err)

	sender, err := push.NewSender(ctx, cfg.FeatureFlags.PushEnabled, cfg.Firebase, cfg.GCP, logg)
	requireResource(ctx, logg, "push sender", err)

	noteRepo := notifications.NewRepository(dbClient.DB(), timeout)
	deviceRepo := notifications.NewDeviceRepository(dbClient.DB(), timeout)
	dispatcher, err := notifications.NewDispatcher(noteRepo, deviceRepo, emitter, sender, metrics.NewPushMetrics(reg), logg)
	requireResource(ctx, logg, "notification dispatcher", err)
	notificationService, err := notifications.NewService(noteRepo, deviceRepo, dbClient, emitter)
	requireResource(ctx, logg, "notifications service", err)

	donationService, err := donations.NewService(donations.NewRepository(dbClient.DB(), timeout), dbClient, emitter, logg)
	requireResource(ctx, logg, "donations service", err)

	matchService, err := matches.NewService(matches.Deps{
		Repo:      matches.NewRepository(dbClient.DB(), timeout),
		Tx:        dbClient,
		Outbox:    emitter,
		Donations: donationService,
		Profiles:  profileService,
		Notifier:  dispatcher,
		Metrics:   metrics.NewMatchMetrics(reg),
		Logger:    logg,
	})
	requireResource(ctx, logg, "matches service", err)

	ratingService, err := ratings.NewService(ratings.NewRepository(dbClient.DB(), timeout))
	requireResource(ctx, logg, "ratings service", err)

	dashboardService, err := dashboard.NewService(dashboard.NewRepository(dbClient.DB(), timeout), matchService, ratingService)
	requireResource(ctx, logg, "dashboard service", err)

	analyticsService, err := analytics.NewService(bqClient, cfg.GCP.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.DonationEventsTable)
	requireResource(ctx, logg, "analytics service", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	hub := livesync.NewHub(cfg.LiveSync.SubscriberBuffer, metrics.NewLiveSyncMetrics(reg))
	consumer, err := livesync.NewConsumer(pubsubClient.Subscription(subscriptionName), hub, manager, instanceID, logg)
	requireResource(ctx, logg, "live sync consumer", err)

	handler := routes.NewRouter(cfg, logg, routes.Deps{
		DB:            dbClient,
		Redis:         redisClient,
		BigQuery:      bqClient,
		Donations:     donationService,
		Matches:       matchService,
		Ratings:       ratingService,
		Notifications: notificationService,
		Profiles:      profileService,
		Dashboard:     dashboardService,
		Analytics:     analyticsService,
		Live:          livesync.NewSocket(hub, cfg.LiveSync, logg),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instanceID,
		"subscription": subscriptionName,
	})
	logg.Info(runCtx, "starting api server")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := consumer.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("live sync consumer: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		hub.Prune(groupCtx, hubPruneTick, hubMarkTTL)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	waitErr := group.Wait()

	releaseCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := pubsubClient.ReleaseInstanceSubscription(releaseCtx, subscriptionName); err != nil {
		logg.Warn(runCtx, "instance subscription left to expire: "+err.Error())
	}
	cancel()

	if waitErr != nil {
		logg.Error(runCtx, "api server stopped unexpectedly", waitErr)
		os.Exit(1)
	}
	logg.Info(runCtx, "api server shut down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
