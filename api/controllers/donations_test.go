package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodbridge/foodbridge-backend/internal/donations"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

type fakeDonations struct {
	donations.Service
	created  *donations.CreateInput
	updated  *donations.UpdateInput
	filter   *donations.ListFilter
	createFn func(donations.CreateInput) (*models.Donation, error)
}

func (f *fakeDonations) Create(_ context.Context, input donations.CreateInput) (*models.Donation, error) {
	f.created = &input
	if f.createFn != nil {
		return f.createFn(input)
	}
	return &models.Donation{ID: uuid.New(), DonorID: input.DonorID, Title: input.Title}, nil
}

func (f *fakeDonations) Update(_ context.Context, input donations.UpdateInput) (*models.Donation, error) {
	f.updated = &input
	return &models.Donation{ID: input.DonationID, DonorID: input.DonorID}, nil
}

func (f *fakeDonations) ListAvailable(_ context.Context, filter donations.ListFilter) (*donations.ListResult, error) {
	f.filter = &filter
	return &donations.ListResult{}, nil
}

func (f *fakeDonations) Get(_ context.Context, id uuid.UUID) (*models.Donation, error) {
	return nil, pkgerrors.NotFound("donation")
}

const createBody = `{
	"title": "  Bagels  ",
	"food_type": "bakery",
	"quantity": "12",
	"unit": "items",
	"expiration_date": "2026-11-02",
	"pickup_location": "12 Main St",
	"pickup_time_start": "2026-11-01T16:00:00Z",
	"pickup_time_end": "2026-11-01T18:00:00Z"
}`

func TestCreateDonation(t *testing.T) {
	svc := &fakeDonations{}
	donor := uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/donations", requestOpts{body: createBody, userID: donor, role: enums.UserRoleDonor})

	rec, env := serve(t, CreateDonation(svc, testLogger()), req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.created)
	assert.Equal(t, donor, svc.created.DonorID)
	assert.Equal(t, enums.UserRoleDonor, svc.created.ActorRole)
	assert.Equal(t, "Bagels", svc.created.Title)
	assert.True(t, decimal.NewFromInt(12).Equal(svc.created.Quantity))
	assert.Equal(t, time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC), svc.created.ExpirationDate)

	var got models.Donation
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, donor, got.DonorID)
}

func TestCreateDonationRejectsInvertedWindow(t *testing.T) {
	svc := &fakeDonations{}
	body := `{"title":"x","food_type":"bakery","quantity":"1","unit":"kg","expiration_date":"2026-11-02",
		"pickup_location":"here","pickup_time_start":"2026-11-01T18:00:00Z","pickup_time_end":"2026-11-01T16:00:00Z"}`
	req := newRequest(http.MethodPost, "/api/v1/donations", requestOpts{body: body, userID: uuid.New(), role: enums.UserRoleDonor})

	rec, env := serve(t, CreateDonation(svc, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
	assert.Nil(t, svc.created)
}

func TestCreateDonationBadDate(t *testing.T) {
	svc := &fakeDonations{}
	body := `{"title":"x","food_type":"bakery","quantity":"1","unit":"kg","expiration_date":"next week",
		"pickup_location":"here","pickup_time_start":"2026-11-01T16:00:00Z","pickup_time_end":"2026-11-01T18:00:00Z"}`
	req := newRequest(http.MethodPost, "/api/v1/donations", requestOpts{body: body, userID: uuid.New(), role: enums.UserRoleDonor})

	rec, env := serve(t, CreateDonation(svc, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "expiration_date", env.Error.Details["field"])
}

func TestCreateDonationRequiresIdentity(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/donations", requestOpts{body: createBody})
	rec, _ := serve(t, CreateDonation(&fakeDonations{}, testLogger()), req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateDonationPassesOnlyProvidedFields(t *testing.T) {
	svc := &fakeDonations{}
	donor := uuid.New()
	donationID := uuid.New()
	req := newRequest(http.MethodPatch, "/api/v1/donations/"+donationID.String(), requestOpts{
		body:   `{"quantity":"3.5","expiration_date":"2026-12-01"}`,
		params: map[string]string{"donationId": donationID.String()},
		userID: donor,
		role:   enums.UserRoleDonor,
	})

	rec, _ := serve(t, UpdateDonation(svc, testLogger()), req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.updated)
	assert.Equal(t, donationID, svc.updated.DonationID)
	assert.Nil(t, svc.updated.Title)
	require.NotNil(t, svc.updated.Quantity)
	assert.Equal(t, "3.5", svc.updated.Quantity.String())
	require.NotNil(t, svc.updated.ExpirationDate)
	assert.Equal(t, 12, int(svc.updated.ExpirationDate.Month()))
}

func TestListDonationsFilters(t *testing.T) {
	svc := &fakeDonations{}
	req := newRequest(http.MethodGet, "/api/v1/donations?q=%20bread%20&category=bakery&limit=10&cursor=abc", requestOpts{})

	rec, _ := serve(t, ListDonations(svc, testLogger()), req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter)
	assert.Equal(t, donations.ListFilter{Query: "bread", Category: "bakery", Limit: 10, Cursor: "abc"}, *svc.filter)
}

func TestListDonationsRejectsLimitOutOfRange(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/donations?limit=500", requestOpts{})
	rec, _ := serve(t, ListDonations(&fakeDonations{}, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDonationNotFound(t *testing.T) {
	id := uuid.New().String()
	req := newRequest(http.MethodGet, "/api/v1/donations/"+id, requestOpts{params: map[string]string{"donationId": id}})
	rec, env := serve(t, GetDonation(&fakeDonations{}, testLogger()), req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeNotFound), env.Error.Code)
}

func TestGetDonationBadID(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/donations/nope", requestOpts{params: map[string]string{"donationId": "nope"}})
	rec, _ := serve(t, GetDonation(&fakeDonations{}, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
