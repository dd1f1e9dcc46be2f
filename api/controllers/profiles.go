package controllers

import (
	"net/http"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/api/validators"
	"github.com/foodbridge/foodbridge-backend/internal/profiles"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

type businessProfileRequest struct {
	BusinessName   string  `json:"business_name" validate:"required,max=200"`
	BusinessType   string  `json:"business_type" validate:"required"`
	Address        string  `json:"address" validate:"required,max=300"`
	Phone          string  `json:"phone" validate:"required,max=32"`
	Email          string  `json:"email" validate:"required,email"`
	LicenseNumber  *string `json:"license_number,omitempty" validate:"omitempty,max=64"`
	Description    *string `json:"description,omitempty"`
	OperatingHours *string `json:"operating_hours,omitempty" validate:"omitempty,max=200"`
}

// MyProfile returns the caller's profile with the business record when onboarded.
func MyProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		me, err := svc.Me(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, me)
	}
}

func GetBusinessProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		business, err := svc.Business(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, business)
	}
}

// UpsertBusinessProfile completes business onboarding for the caller.
func UpsertBusinessProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body businessProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		business, err := svc.UpsertBusiness(r.Context(), profiles.BusinessInput{
			UserID:         userID,
			BusinessName:   body.BusinessName,
			BusinessType:   body.BusinessType,
			Address:        body.Address,
			Phone:          body.Phone,
			Email:          body.Email,
			LicenseNumber:  body.LicenseNumber,
			Description:    sanitizeOptional(body.Description, maxDescriptionLength),
			OperatingHours: body.OperatingHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, business)
	}
}
