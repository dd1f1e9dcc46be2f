package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foodbridge/foodbridge-backend/api/middleware"
	"github.com/foodbridge/foodbridge-backend/api/responses"
	"github.com/foodbridge/foodbridge-backend/api/validators"
	"github.com/foodbridge/foodbridge-backend/internal/donations"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

const (
	maxTitleLength       = 120
	maxDescriptionLength = 2000
	maxLocationLength    = 300
	maxSearchLength      = 100
)

type createDonationRequest struct {
	Title           string          `json:"title" validate:"required,max=120"`
	Description     *string         `json:"description,omitempty"`
	FoodType        string          `json:"food_type" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit" validate:"required"`
	ExpirationDate  string          `json:"expiration_date" validate:"required"`
	PickupLocation  string          `json:"pickup_location" validate:"required,max=300"`
	PickupTimeStart time.Time       `json:"pickup_time_start" validate:"required"`
	PickupTimeEnd   time.Time       `json:"pickup_time_end" validate:"required,gtfield=PickupTimeStart"`
	ImageURL        *string         `json:"image_url,omitempty" validate:"omitempty,url"`
}

type updateDonationRequest struct {
	Title           *string          `json:"title,omitempty" validate:"omitempty,max=120"`
	Description     *string          `json:"description,omitempty"`
	FoodType        *string          `json:"food_type,omitempty"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	Unit            *string          `json:"unit,omitempty"`
	ExpirationDate  *string          `json:"expiration_date,omitempty"`
	PickupLocation  *string          `json:"pickup_location,omitempty" validate:"omitempty,max=300"`
	PickupTimeStart *time.Time       `json:"pickup_time_start,omitempty"`
	PickupTimeEnd   *time.Time       `json:"pickup_time_end,omitempty"`
	ImageURL        *string          `json:"image_url,omitempty" validate:"omitempty,url"`
}

// ListDonations returns one page of claimable donations.
func ListDonations(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donations service unavailable"))
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		result, err := svc.ListAvailable(r.Context(), donations.ListFilter{
			Query:    validators.SanitizeString(query.Get("q"), maxSearchLength),
			Category: strings.TrimSpace(query.Get("category")),
			Limit:    page.Limit,
			Cursor:   page.Cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MyDonations lists the caller's own donations newest first.
func MyDonations(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListByDonor(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetDonation(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		donationID, err := validators.ParsePathUUID(r, "donationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		donation, err := svc.Get(r.Context(), donationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donation)
	}
}

// CreateDonation posts a new listing for the calling donor.
func CreateDonation(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createDonationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expiration, err := parseDate("expiration_date", body.ExpirationDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		donation, err := svc.Create(r.Context(), donations.CreateInput{
			DonorID:         userID,
			ActorRole:       role,
			Title:           validators.SanitizeString(body.Title, maxTitleLength),
			Description:     sanitizeOptional(body.Description, maxDescriptionLength),
			FoodType:        body.FoodType,
			Quantity:        body.Quantity,
			Unit:            body.Unit,
			ExpirationDate:  expiration,
			PickupLocation:  validators.SanitizeString(body.PickupLocation, maxLocationLength),
			PickupTimeStart: body.PickupTimeStart,
			PickupTimeEnd:   body.PickupTimeEnd,
			ImageURL:        body.ImageURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, donation)
	}
}

// UpdateDonation applies a donor's partial edit while the listing is still available.
func UpdateDonation(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body updateDonationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := donations.UpdateInput{
			DonationID:      donationID,
			DonorID:         userID,
			ActorRole:       role,
			Title:           sanitizeOptional(body.Title, maxTitleLength),
			Description:     sanitizeOptional(body.Description, maxDescriptionLength),
			FoodType:        body.FoodType,
			Quantity:        body.Quantity,
			Unit:            body.Unit,
			PickupLocation:  sanitizeOptional(body.PickupLocation, maxLocationLength),
			PickupTimeStart: body.PickupTimeStart,
			PickupTimeEnd:   body.PickupTimeEnd,
			ImageURL:        body.ImageURL,
		}
		if body.ExpirationDate != nil {
			expiration, err := parseDate("expiration_date", *body.ExpirationDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.ExpirationDate = &expiration
		}

		donation, err := svc.Update(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donation)
	}
}

func sanitizeOptional(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxLen)
	return &clean
}
