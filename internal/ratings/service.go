package ratings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

const (
	minScore          = 1
	maxScore          = 5
	maxFeedbackLength = 2000
	uniqueRating      = "ux_ratings_match_user"
)

// RateInput is one participant's review of a completed match.
type RateInput struct {
	MatchID  uuid.UUID
	ActorID  uuid.UUID
	Score    int
	Feedback string
}

// Review is a rating joined with display context.
type Review struct {
	ID            uuid.UUID `json:"id"`
	MatchID       uuid.UUID `json:"match_id"`
	UserID        uuid.UUID `json:"user_id"`
	Score         int       `json:"score"`
	Feedback      *string   `json:"feedback,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	RaterName     string    `json:"rater_name"`
	DonationTitle string    `json:"donation_title"`
}

// ListResult is one page of reviews.
type ListResult struct {
	Items  []Review `json:"items"`
	Cursor string   `json:"cursor"`
}

// Service records and lists ratings.
type Service interface {
	Rate(ctx context.Context, input RateInput) (*models.Rating, error)
	Recent(ctx context.Context, params pagination.Params) (*ListResult, error)
	DonorAverage(ctx context.Context, donorID uuid.UUID) (float64, int64, error)
}

type service struct {
	repo *Repository
	now  func() time.Time
}

// NewService wires the ratings service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ratings repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Rate stores a review. Only parties of a completed match may rate it, once each.
func (s *service) Rate(ctx context.Context, input RateInput) (*models.Rating, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Score < minScore || input.Score > maxScore {
		return nil, pkgerrors.Validation("score", "score must be between 1 and 5")
	}
	feedback := strings.TrimSpace(input.Feedback)
	if len(feedback) > maxFeedbackLength {
		return nil, pkgerrors.Validation("feedback", "feedback is too long")
	}

	match, donation, err := s.repo.FindMatch(ctx, input.MatchID)
	if err != nil {
		return nil, db.Classify(err, "match not found")
	}
	if !isParticipant(*match, *donation, input.ActorID) {
		return nil, pkgerrors.NotFound("match")
	}
	if match.Status != enums.MatchStatusCompleted {
		return nil, pkgerrors.Conflict("not_completed", "only completed matches can be rated").
			With("status", match.Status)
	}

	rating := &models.Rating{
		ID:        uuid.New(),
		MatchID:   match.ID,
		UserID:    input.ActorID,
		Score:     input.Score,
		CreatedAt: s.now(),
	}
	if feedback != "" {
		rating.Feedback = &feedback
	}
	if err := s.repo.Create(ctx, rating); err != nil {
		if db.IsUniqueViolation(err, uniqueRating) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "match already rated").
				WithDetails(map[string]any{"kind": "duplicate"})
		}
		return nil, db.Classify(err, "save rating")
	}
	return rating, nil
}

func (s *service) Recent(ctx context.Context, params pagination.Params) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.Recent(ctx, pagination.LimitWithBuffer(limit), after)
	if err != nil {
		return nil, db.Classify(err, "list reviews")
	}
	items, cursor := pagination.Trim(rows, limit, func(r Review) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	if items == nil {
		items = []Review{}
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) DonorAverage(ctx context.Context, donorID uuid.UUID) (float64, int64, error) {
	avg, total, err := s.repo.AverageFor(ctx, donorID)
	if err != nil {
		return 0, 0, db.Classify(err, "average rating")
	}
	return avg, total, nil
}

func isParticipant(match models.Match, donation models.Donation, userID uuid.UUID) bool {
	if match.RecipientID == userID || donation.DonorID == userID {
		return true
	}
	return match.VolunteerID != nil && *match.VolunteerID == userID
}
