package profiles

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes profile reads and business onboarding.
type Service interface {
	Me(ctx context.Context, userID uuid.UUID) (*MeView, error)
	RoleOf(ctx context.Context, userID uuid.UUID) (enums.UserRole, error)
	Contacts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Contact, error)
	Business(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error)
	UpsertBusiness(ctx context.Context, input BusinessInput) (*models.BusinessProfile, error)
}

type service struct {
	repo *Repository
	tx   txRunner
	now  func() time.Time
}

// NewService builds a profile service.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "profiles repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*MeView, error) {
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, db.Classify(err, "profile not found")
	}
	view := &MeView{Profile: *profile}
	if profile.OrganizationType == enums.OrganizationBusiness {
		business, err := s.repo.FindBusiness(ctx, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, db.Classify(err, "load business profile")
		}
		view.Business = business
	}
	return view, nil
}

// RoleOf returns the role stored for userID; the token's role claim is checked against it.
func (s *service) RoleOf(ctx context.Context, userID uuid.UUID) (enums.UserRole, error) {
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", db.Classify(err, "profile not found")
	}
	return profile.Role, nil
}

func (s *service) Contacts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Contact, error) {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	rows, err := s.repo.FindByIDs(ctx, unique)
	if err != nil {
		return nil, db.Classify(err, "load contacts")
	}
	out := make(map[uuid.UUID]Contact, len(rows))
	for _, row := range rows {
		out[row.ID] = ContactFrom(row)
	}
	return out, nil
}

func (s *service) Business(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error) {
	business, err := s.repo.FindBusiness(ctx, userID)
	if err != nil {
		return nil, db.Classify(err, "business profile not found")
	}
	return business, nil
}

// UpsertBusiness onboards a donor as a business and marks the profile accordingly.
func (s *service) UpsertBusiness(ctx context.Context, input BusinessInput) (*models.BusinessProfile, error) {
	business, err := s.validateBusiness(input)
	if err != nil {
		return nil, err
	}

	var saved *models.BusinessProfile
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		profile, err := repo.FindByID(ctx, input.UserID)
		if err != nil {
			return db.Classify(err, "profile not found")
		}
		if profile.Role != enums.UserRoleDonor {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only donors can register a business")
		}
		if err := repo.UpsertBusiness(ctx, business); err != nil {
			return db.Classify(err, "save business profile")
		}
		if _, err := repo.SetOrganizationType(ctx, input.UserID, enums.OrganizationBusiness, business.UpdatedAt); err != nil {
			return db.Classify(err, "update organization type")
		}
		saved, err = repo.FindBusiness(ctx, input.UserID)
		return db.Classify(err, "reload business profile")
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) validateBusiness(input BusinessInput) (*models.BusinessProfile, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	name := strings.TrimSpace(input.BusinessName)
	if name == "" {
		return nil, pkgerrors.Validation("business_name", "business name is required")
	}
	businessType, err := enums.ParseBusinessType(strings.TrimSpace(input.BusinessType))
	if err != nil {
		return nil, pkgerrors.Validation("business_type", err.Error())
	}
	address := strings.TrimSpace(input.Address)
	if address == "" {
		return nil, pkgerrors.Validation("address", "address is required")
	}
	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		return nil, pkgerrors.Validation("phone", "phone is required")
	}
	email := strings.TrimSpace(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.Validation("email", "email is invalid")
	}

	now := s.now()
	return &models.BusinessProfile{
		ID:             uuid.New(),
		UserID:         input.UserID,
		BusinessName:   name,
		BusinessType:   businessType,
		Address:        address,
		Phone:          phone,
		Email:          strings.ToLower(email),
		LicenseNumber:  trimmed(input.LicenseNumber),
		Description:    trimmed(input.Description),
		OperatingHours: trimmed(input.OperatingHours),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
