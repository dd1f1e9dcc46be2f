package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foodbridge/foodbridge-backend/api/controllers"
	analyticscontrollers "github.com/foodbridge/foodbridge-backend/api/controllers/analytics"
	"github.com/foodbridge/foodbridge-backend/api/middleware"
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
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/redis"
)

// Deps are the services mounted by the API router. Nil infrastructure
// clients disable the middleware and readiness checks that need them.
type Deps struct {
	DB       db.Pinger
	Redis    *redis.Client
	BigQuery bigquery.Pinger

	Donations     donations.Service
	Matches       matches.Service
	Ratings       ratings.Service
	Notifications notifications.Service
	Profiles      profiles.Service
	Dashboard     *dashboard.Service
	Analytics     analytics.Service
	Live          *livesync.Socket
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checks := []controllers.ReadinessCheck{{Name: "db", Pinger: deps.DB}}
	if deps.Redis != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: deps.Redis})
	}
	if deps.BigQuery != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "bigquery", Pinger: deps.BigQuery})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	if deps.Live != nil {
		r.With(middleware.AuthWithQueryToken(cfg.JWT, logg)).
			Get("/api/v1/live", controllers.LiveFeed(deps.Live, logg))
	}

	writePolicy := middleware.NewRateLimitPolicy("writes", cfg.RateLimit.Window, cfg.RateLimit.Limit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.RateLimit(writePolicy, deps.Redis, logg))
		}
		r.Get("/me/session", controllers.Session())

		donors := middleware.RequireRole(logg, enums.UserRoleDonor)
		recipients := middleware.RequireRole(logg, enums.UserRoleRecipient)
		retrySafe := passThrough
		retrySafeClaim := passThrough
		if deps.Redis != nil {
			retrySafe = middleware.Idempotent(deps.Redis, middleware.IdempotencyTTL, logg)
			retrySafeClaim = middleware.Idempotent(deps.Redis, middleware.ClaimIdempotencyTTL, logg)
		}

		r.Route("/donations", func(r chi.Router) {
			r.Get("/", controllers.ListDonations(deps.Donations, logg))
			r.With(donors).Get("/mine", controllers.MyDonations(deps.Donations, logg))
			r.With(donors, retrySafe).Post("/", controllers.CreateDonation(deps.Donations, logg))
			r.Get("/{donationId}", controllers.GetDonation(deps.Donations, logg))
			r.With(donors).Patch("/{donationId}", controllers.UpdateDonation(deps.Donations, logg))
			r.With(recipients, retrySafeClaim).Post("/{donationId}/claim", controllers.ClaimDonation(deps.Matches, logg))
		})

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", controllers.ListMatches(deps.Matches, logg))
			r.Get("/{matchId}", controllers.GetMatch(deps.Matches, logg))
			r.With(retrySafe).Post("/{matchId}/transition", controllers.TransitionMatch(deps.Matches, logg))
			r.With(recipients, retrySafeClaim).Post("/{matchId}/reorder", controllers.ReorderMatch(deps.Matches, logg))
			r.With(retrySafe).Post("/{matchId}/ratings", controllers.RateMatch(deps.Ratings, logg))
		})

		r.Get("/ratings", controllers.ListRatings(deps.Ratings, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", controllers.RegisterDevice(deps.Notifications, logg))
			r.Delete("/", controllers.UnregisterDevice(deps.Notifications, logg))
		})

		r.Route("/profiles/me", func(r chi.Router) {
			r.Get("/", controllers.MyProfile(deps.Profiles, logg))
			r.Get("/business", controllers.GetBusinessProfile(deps.Profiles, logg))
			r.With(retrySafe).Put("/business", controllers.UpsertBusinessProfile(deps.Profiles, logg))
		})

		r.Route("/dashboard", func(r chi.Router) {
			if deps.Dashboard != nil {
				r.Get("/stats", controllers.DashboardStats(deps.Dashboard, logg))
			}
			if deps.Analytics != nil {
				r.Get("/impact", analyticscontrollers.DonorImpact(deps.Analytics, logg))
			}
		})
	})

	return r
}

func passThrough(next http.Handler) http.Handler { return next }
