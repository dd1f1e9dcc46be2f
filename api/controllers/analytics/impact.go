package analytics

import (
	"net/http"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/internal/analytics"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

// DonorImpact returns the caller's donation lifecycle series for the requested window.
func DonorImpact(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "analytics unavailable"))
			return
		}

		userID, role, err := middleware.ActorFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if role != enums.UserRoleDonor {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "impact reports are available to donors"))
			return
		}

		q := r.URL.Query()
		result, err := service.Impact(ctx, userID, analytics.WindowQuery{
			Preset: q.Get("preset"),
			From:   q.Get("from"),
			To:     q.Get("to"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
