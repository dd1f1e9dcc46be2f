package donations

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

const (
	maxTitleLength = 200
	expireBatch    = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type changeEmitter interface {
	EmitChange(ctx context.Context, tx *gorm.DB, change payloads.ChangeEvent, actor *outbox.ActorRef) error
}

// Service is the donation registry.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Donation, error)
	Update(ctx context.Context, input UpdateInput) (*models.Donation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	ListAvailable(ctx context.Context, filter ListFilter) (*ListResult, error)
	Available(ctx context.Context, filter ListFilter) iter.Seq2[models.Donation, error]
	ListByDonor(ctx context.Context, donorID uuid.UUID, params pagination.Params) (*ListResult, error)

	MarkClaimed(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, error)
	Release(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, bool, error)
	MarkCompleted(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   changeEmitter
	logg     *logger.Logger
	now      func() time.Time
	onExpire ExpiryHook
}

// ExpiryHook runs inside the transaction that expires a donation.
type ExpiryHook func(ctx context.Context, tx *gorm.DB, donation models.Donation) error

// Option customises the registry.
type Option func(*service)

// WithExpiryHook registers a callback for donations moved to expired.
func WithExpiryHook(hook ExpiryHook) Option {
	return func(s *service) {
		s.onExpire = hook
	}
}

// NewService wires the donation registry.
func NewService(repo Repository, tx txRunner, emitter changeEmitter, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "donations repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	svc := &service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Donation, error) {
	if input.DonorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ActorRole != enums.UserRoleDonor {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only donors can post donations")
	}

	now := s.now()
	donation := &models.Donation{
		ID:              uuid.New(),
		DonorID:         input.DonorID,
		Title:           strings.TrimSpace(input.Title),
		Description:     trimmedOrNil(input.Description),
		Quantity:        input.Quantity,
		ExpirationDate:  DateOf(input.ExpirationDate),
		PickupLocation:  strings.TrimSpace(input.PickupLocation),
		PickupTimeStart: input.PickupTimeStart.UTC(),
		PickupTimeEnd:   input.PickupTimeEnd.UTC(),
		ImageURL:        trimmedOrNil(input.ImageURL),
		Status:          enums.DonationStatusAvailable,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	foodType, err := enums.ParseFoodType(strings.TrimSpace(input.FoodType))
	if err != nil {
		return nil, unknownCategory("food_type", err)
	}
	donation.FoodType = foodType
	unit, err := enums.ParseQuantityUnit(strings.TrimSpace(input.Unit))
	if err != nil {
		return nil, pkgerrors.Validation("unit", err.Error())
	}
	donation.Unit = unit

	if input.ExpirationDate.IsZero() {
		return nil, pkgerrors.Validation("expiration_date", "expiration date is required")
	}
	if err := validateDonation(donation, DateOf(now)); err != nil {
		return nil, err
	}

	actor := outbox.Actor(input.DonorID, input.ActorRole)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, donation); err != nil {
			return db.Classify(err, "create donation")
		}
		return s.emit(ctx, tx, donation, enums.ChangeOpInsert, "", actor)
	})
	if err != nil {
		return nil, db.Classify(err, "create donation")
	}
	return donation, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*models.Donation, error) {
	if input.DonationID == uuid.Nil {
		return nil, pkgerrors.Validation("donation_id", "donation id required")
	}
	if input.DonorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ActorRole != enums.UserRoleDonor {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only donors can edit donations")
	}

	var updated *models.Donation
	actor := outbox.Actor(input.DonorID, input.ActorRole)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, input.DonationID)
		if err != nil {
			return db.Classify(err, "donation not found")
		}
		if current.DonorID != input.DonorID {
			return pkgerrors.NotFound("donation")
		}
		if current.Status != enums.DonationStatusAvailable {
			return pkgerrors.Conflict("not_editable", fmt.Sprintf("donation is %s and can no longer be edited", current.Status)).
				With("status", current.Status)
		}

		fields, err := applyUpdate(current, input)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			updated = current
			return nil
		}
		if err := validateDonation(current, DateOf(s.now())); err != nil {
			return err
		}

		now := s.now()
		affected, err := repo.UpdateAvailable(ctx, input.DonationID, input.DonorID, fields, now)
		if err != nil {
			return db.Classify(err, "update donation")
		}
		if affected == 0 {
			return pkgerrors.Conflict("race_lost", "donation changed while editing")
		}
		updated, err = repo.FindByID(ctx, input.DonationID)
		if err != nil {
			return db.Classify(err, "reload donation")
		}
		return s.emit(ctx, tx, updated, enums.ChangeOpUpdate, enums.DonationStatusAvailable, actor)
	})
	if err != nil {
		return nil, db.Classify(err, "update donation")
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.Validation("donation_id", "donation id required")
	}
	donation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, db.Classify(err, "donation not found")
	}
	return donation, nil
}

func (s *service) ListAvailable(ctx context.Context, filter ListFilter) (*ListResult, error) {
	q := listQuery{
		Query: filter.Query,
		Today: DateOf(s.now()),
		Limit: pagination.LimitWithBuffer(filter.Limit),
	}
	if category := strings.TrimSpace(filter.Category); category != "" && !strings.EqualFold(category, "all") {
		foodType, err := enums.ParseFoodType(strings.ToLower(category))
		if err != nil {
			return nil, unknownCategory("category", err)
		}
		q.Category = &foodType
	}
	after, err := parseCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	q.Cursor = after

	rows, err := s.repo.ListAvailable(ctx, q)
	if err != nil {
		return nil, db.Classify(err, "list donations")
	}
	return page(rows, filter.Limit), nil
}

// Available yields available donations page by page. Each invocation of the
// returned sequence restarts from the filter's cursor.
func (s *service) Available(ctx context.Context, filter ListFilter) iter.Seq2[models.Donation, error] {
	return func(yield func(models.Donation, error) bool) {
		next := filter
		for {
			result, err := s.ListAvailable(ctx, next)
			if err != nil {
				yield(models.Donation{}, err)
				return
			}
			for _, donation := range result.Items {
				if !yield(donation, nil) {
					return
				}
			}
			if result.Cursor == "" {
				return
			}
			next.Cursor = result.Cursor
		}
	}
}

func (s *service) ListByDonor(ctx context.Context, donorID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if donorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	after, err := parseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByDonor(ctx, donorID, pagination.LimitWithBuffer(params.Limit), after)
	if err != nil {
		return nil, db.Classify(err, "list donor donations")
	}
	return page(rows, params.Limit), nil
}

func (s *service) MarkClaimed(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, error) {
	now := s.now()
	repo := s.repo.WithTx(tx)
	affected, err := repo.MarkClaimed(ctx, donationID, DateOf(now), now)
	if err != nil {
		return nil, db.Classify(err, "claim donation")
	}
	if affected == 0 {
		return nil, s.notClaimable(ctx, repo, donationID)
	}
	return s.reloadAndEmit(ctx, tx, repo, donationID, enums.DonationStatusAvailable, actor)
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, bool, error) {
	repo := s.repo.WithTx(tx)
	affected, err := repo.Release(ctx, donationID, s.now())
	if err != nil {
		return nil, false, db.Classify(err, "release donation")
	}
	if affected == 0 {
		return nil, false, nil
	}
	donation, err := s.reloadAndEmit(ctx, tx, repo, donationID, enums.DonationStatusClaimed, actor)
	if err != nil {
		return nil, false, err
	}
	return donation, true, nil
}

func (s *service) MarkCompleted(ctx context.Context, tx *gorm.DB, donationID uuid.UUID, actor *outbox.ActorRef) (*models.Donation, error) {
	repo := s.repo.WithTx(tx)
	affected, err := repo.MarkCompleted(ctx, donationID, s.now())
	if err != nil {
		return nil, db.Classify(err, "complete donation")
	}
	if affected == 0 {
		return nil, pkgerrors.Conflict("not_claimed", "donation is no longer claimed")
	}
	return s.reloadAndEmit(ctx, tx, repo, donationID, enums.DonationStatusClaimed, actor)
}

// MarkExpired moves every available donation whose expiration date has passed
// to expired. Each row is its own transaction; failures are collected and the
// sweep continues.
func (s *service) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	today := DateOf(now)
	var (
		expired int64
		errs    error
		seen    = map[uuid.UUID]struct{}{}
	)
	for {
		ids, err := s.repo.ExpiredCandidates(ctx, today, expireBatch)
		if err != nil {
			return expired, multierr.Append(errs, db.Classify(err, "list expired donations"))
		}
		fresh := 0
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			fresh++
			var moved bool
			err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				repo := s.repo.WithTx(tx)
				affected, err := repo.MarkExpired(ctx, id, today, now.UTC())
				if err != nil || affected == 0 {
					return err
				}
				moved = true
				donation, err := s.reloadAndEmit(ctx, tx, repo, id, enums.DonationStatusAvailable, nil)
				if err != nil || s.onExpire == nil {
					return err
				}
				return s.onExpire(ctx, tx, *donation)
			})
			if err != nil {
				errs = multierr.Append(errs, err)
				if s.logg != nil {
					s.logg.Error(s.logg.WithDonationID(ctx, id), "expire donation failed", err)
				}
				continue
			}
			if moved {
				expired++
			}
		}
		if len(ids) < expireBatch || fresh == 0 {
			break
		}
	}
	return expired, errs
}

func (s *service) notClaimable(ctx context.Context, repo Repository, donationID uuid.UUID) error {
	current, err := repo.FindByID(ctx, donationID)
	if err != nil {
		return db.Classify(err, "donation not found")
	}
	if current.Status == enums.DonationStatusAvailable {
		return pkgerrors.Conflict("expired", "donation has expired").With("status", current.Status)
	}
	return pkgerrors.Conflict("unavailable", fmt.Sprintf("donation is already %s", current.Status)).With("status", current.Status)
}

func (s *service) reloadAndEmit(ctx context.Context, tx *gorm.DB, repo Repository, id uuid.UUID, from enums.DonationStatus, actor *outbox.ActorRef) (*models.Donation, error) {
	donation, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, db.Classify(err, "reload donation")
	}
	if err := s.emit(ctx, tx, donation, enums.ChangeOpUpdate, from, actor); err != nil {
		return nil, err
	}
	return donation, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, donation *models.Donation, op enums.ChangeOp, from enums.DonationStatus, actor *outbox.ActorRef) error {
	return s.outbox.EmitChange(ctx, tx, ChangeFor(donation, op, from), actor)
}

// ChangeFor builds the change event for a donation row. Rows entering or
// leaving the available pool are public so browse views can refresh.
func ChangeFor(donation *models.Donation, op enums.ChangeOp, from enums.DonationStatus) payloads.ChangeEvent {
	return payloads.ChangeEvent{
		Table:      enums.AggregateDonation,
		RowID:      donation.ID,
		Op:         op,
		RowVersion: donation.Version,
		Status:     string(donation.Status),
		OwnerIDs:   []uuid.UUID{donation.DonorID},
		Public:     donation.Status == enums.DonationStatusAvailable || from == enums.DonationStatusAvailable,
		Donation: &payloads.DonationFacts{
			DonorID:        donation.DonorID,
			FoodType:       donation.FoodType,
			Quantity:       donation.Quantity,
			Unit:           donation.Unit,
			ExpirationDate: donation.ExpirationDate,
		},
	}
}

func validateDonation(d *models.Donation, today time.Time) error {
	switch {
	case d.Title == "":
		return pkgerrors.Validation("title", "title is required")
	case len(d.Title) > maxTitleLength:
		return pkgerrors.Validation("title", "title is too long")
	case !d.FoodType.IsValid():
		return pkgerrors.Validation("food_type", "food type is invalid")
	case !d.Quantity.GreaterThan(decimal.Zero):
		return pkgerrors.Validation("quantity", "quantity must be greater than zero")
	case !d.Unit.IsValid():
		return pkgerrors.Validation("unit", "unit is invalid")
	case d.PickupLocation == "":
		return pkgerrors.Validation("pickup_location", "pickup location is required")
	case d.PickupTimeStart.IsZero() || d.PickupTimeEnd.IsZero():
		return pkgerrors.Validation("pickup_time_start", "pickup window is required")
	case !d.PickupTimeStart.Before(d.PickupTimeEnd):
		return pkgerrors.Validation("pickup_time_end", "pickup window must end after it starts")
	case d.ExpirationDate.Before(today):
		return pkgerrors.Validation("expiration_date", "expiration date cannot be in the past")
	}
	return nil
}

// applyUpdate merges the edit into current and returns the changed columns.
func applyUpdate(current *models.Donation, input UpdateInput) (map[string]any, error) {
	fields := map[string]any{}
	if input.Title != nil {
		current.Title = strings.TrimSpace(*input.Title)
		fields["title"] = current.Title
	}
	if input.Description != nil {
		current.Description = trimmedOrNil(input.Description)
		fields["description"] = current.Description
	}
	if input.FoodType != nil {
		foodType, err := enums.ParseFoodType(strings.TrimSpace(*input.FoodType))
		if err != nil {
			return nil, unknownCategory("food_type", err)
		}
		current.FoodType = foodType
		fields["food_type"] = foodType
	}
	if input.Quantity != nil {
		current.Quantity = *input.Quantity
		fields["quantity"] = current.Quantity
	}
	if input.Unit != nil {
		unit, err := enums.ParseQuantityUnit(strings.TrimSpace(*input.Unit))
		if err != nil {
			return nil, pkgerrors.Validation("unit", err.Error())
		}
		current.Unit = unit
		fields["unit"] = unit
	}
	if input.ExpirationDate != nil {
		current.ExpirationDate = DateOf(*input.ExpirationDate)
		fields["expiration_date"] = current.ExpirationDate
	}
	if input.PickupLocation != nil {
		current.PickupLocation = strings.TrimSpace(*input.PickupLocation)
		fields["pickup_location"] = current.PickupLocation
	}
	if input.PickupTimeStart != nil {
		current.PickupTimeStart = input.PickupTimeStart.UTC()
		fields["pickup_time_start"] = current.PickupTimeStart
	}
	if input.PickupTimeEnd != nil {
		current.PickupTimeEnd = input.PickupTimeEnd.UTC()
		fields["pickup_time_end"] = current.PickupTimeEnd
	}
	if input.ImageURL != nil {
		current.ImageURL = trimmedOrNil(input.ImageURL)
		fields["image_url"] = current.ImageURL
	}
	return fields, nil
}

// unknownCategory lists the accepted food types so clients can correct input.
func unknownCategory(field string, err error) error {
	return pkgerrors.New(pkgerrors.CodeValidation, err.Error()).
		WithDetails(map[string]any{"field": field, "allowed": enums.FoodTypes()})
}

func parseCursor(value string) (*pagination.Cursor, error) {
	parsed, err := pagination.ParseCursor(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").
			WithDetails(map[string]any{"field": "cursor"})
	}
	return parsed, nil
}

func page(rows []models.Donation, limit int) *ListResult {
	items, next := pagination.Trim(rows, limit, func(d models.Donation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	if items == nil {
		items = []models.Donation{}
	}
	return &ListResult{Items: items, Cursor: next}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
