package controllers

import (
	"net/http"
	"time"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/internal/matches"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// PublicPing answers unauthenticated reachability probes from clients.
func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]any{"status": "ok", "time": time.Now().UTC()})
	}
}

type sessionView struct {
	UserID      string               `json:"user_id"`
	Role        enums.UserRole       `json:"role"`
	Transitions []matches.Capability `json:"transitions"`
}

// Session echoes the caller's identity and the match moves their role may
// attempt, so clients can decide which actions to offer.
func Session() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), nil, w, err)
			return
		}
		moves := matches.CapabilitiesFor(role)
		if moves == nil {
			moves = []matches.Capability{}
		}
		responses.WriteSuccess(w, sessionView{UserID: userID.String(), Role: role, Transitions: moves})
	}
}
