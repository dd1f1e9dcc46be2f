package controllers

import (
	"net/http"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/internal/livesync"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

type liveSocket interface {
	Serve(w http.ResponseWriter, r *http.Request, viewer livesync.Viewer, tables []enums.OutboxAggregateType) error
}

// LiveFeed upgrades to a WebSocket that streams change notices for the
// requested tables, filtered to rows the caller may see.
func LiveFeed(socket liveSocket, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tables, err := livesync.ParseTables(r.URL.Query().Get("tables"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		viewer := livesync.Viewer{UserID: userID, Role: role}
		if err := socket.Serve(w, r, viewer, tables); err != nil && logg != nil {
			// the upgrader has already answered the client
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "live feed upgrade failed")
		}
	}
}
