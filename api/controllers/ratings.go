package controllers

import (
	"net/http"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/api/validators"
	"github.com/foodbridge/foodbridge-backend/internal/ratings"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

const maxFeedbackLength = 2000

type rateMatchRequest struct {
	Score    int    `json:"score" validate:"min=1,max=5"`
	Feedback string `json:"feedback,omitempty"`
}

// RateMatch records the caller's review of a completed match.
func RateMatch(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		matchID, err := validators.ParsePathUUID(r, "matchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rateMatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rating, err := svc.Rate(r.Context(), ratings.RateInput{
			MatchID:  matchID,
			ActorID:  userID,
			Score:    body.Score,
			Feedback: validators.SanitizeString(body.Feedback, maxFeedbackLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rating)
	}
}

// ListRatings returns the most recent reviews.
func ListRatings(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Recent(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
