package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/internal/dashboard"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

type dashboardService interface {
	Stats(ctx context.Context, userID uuid.UUID, role enums.UserRole) (*dashboard.Stats, error)
}

// DashboardStats summarises the caller's activity for their role.
func DashboardStats(svc dashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.Stats(r.Context(), userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
