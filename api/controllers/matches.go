package controllers

import (
	"net/http"
	"strings"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/api/validators"
	"github.com/foodbridge/foodbridge-backend/internal/matches"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// ClaimDonation reserves a donation for the calling recipient.
func ClaimDonation(svc matches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		donationID, err := validators.ParsePathUUID(r, "donationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		match, err := svc.Claim(r.Context(), matches.ClaimInput{
			DonationID: donationID,
			ActorID:    userID,
			ActorRole:  role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, match)
	}
}

// ListMatches returns the matches visible to the caller. Volunteers pass
// queue=true to include confirmed matches awaiting pickup.
func ListMatches(svc matches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := matches.ListInput{
			ActorID:   userID,
			ActorRole: role,
			Status:    strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:     page.Limit,
			Cursor:    page.Cursor,
		}
		if input.Queue, err = validators.ParseQueryBool(r, "queue"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetMatch(svc matches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		matchID, err := validators.ParsePathUUID(r, "matchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), matchID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// TransitionMatch moves a match to the requested status.
func TransitionMatch(svc matches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		matchID, err := validators.ParsePathUUID(r, "matchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseMatchStatus(strings.TrimSpace(body.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Validation("status", err.Error()))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithMatchID(ctx, matchID)
		}
		match, err := svc.Transition(ctx, matches.TransitionInput{
			MatchID:   matchID,
			ActorID:   userID,
			ActorRole: role,
			Target:    target,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, match)
	}
}

// ReorderMatch re-claims the donation of a cancelled match for its recipient.
func ReorderMatch(svc matches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		matchID, err := validators.ParsePathUUID(r, "matchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		match, err := svc.Reorder(r.Context(), matches.ReorderInput{
			MatchID:   matchID,
			ActorID:   userID,
			ActorRole: role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, match)
	}
}
