package dashboard

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

type matchCounter interface {
	Counts(ctx context.Context, actorID uuid.UUID, role enums.UserRole) (map[enums.MatchStatus]int64, error)
}

type ratingAverager interface {
	DonorAverage(ctx context.Context, donorID uuid.UUID) (float64, int64, error)
}

// Stats is the per-role summary shown on the dashboard.
type Stats struct {
	Role             enums.UserRole                         `json:"role"`
	ActiveDonations  int64                                  `json:"active_donations"`
	TotalDonations   int64                                  `json:"total_donations"`
	PendingMatches   int64                                  `json:"pending_matches"`
	InTransitMatches int64                                  `json:"in_transit_matches"`
	CompletedMatches int64                                  `json:"completed_matches"`
	TotalImpact      int64                                  `json:"total_impact"`
	QuantityDonated  map[enums.QuantityUnit]decimal.Decimal `json:"quantity_donated,omitempty"`
	AverageRating    *float64                               `json:"average_rating,omitempty"`
	RatingCount      int64                                  `json:"rating_count"`
}

// Service computes dashboard stats.
type Service struct {
	repo    *Repository
	matches matchCounter
	ratings ratingAverager
}

// NewService wires the dashboard.
func NewService(repo *Repository, matches matchCounter, ratings ratingAverager) (*Service, error) {
	if repo == nil || matches == nil || ratings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dashboard dependencies required")
	}
	return &Service{repo: repo, matches: matches, ratings: ratings}, nil
}

// Stats summarises the caller's activity for their role.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID, role enums.UserRole) (*Stats, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	counts, err := s.matches.Counts(ctx, userID, role)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Role:             role,
		PendingMatches:   counts[enums.MatchStatusPending] + counts[enums.MatchStatusConfirmed] + counts[enums.MatchStatusInTransit],
		InTransitMatches: counts[enums.MatchStatusInTransit],
		CompletedMatches: counts[enums.MatchStatusCompleted],
	}
	for _, n := range counts {
		stats.TotalImpact += n
	}

	if role != enums.UserRoleDonor {
		return stats, nil
	}

	donations, err := s.repo.DonationCounts(ctx, userID)
	if err != nil {
		return nil, db.Classify(err, "count donations")
	}
	for _, n := range donations {
		stats.TotalDonations += n
	}
	stats.ActiveDonations = donations[enums.DonationStatusAvailable]
	stats.TotalImpact = stats.TotalDonations

	quantities, err := s.repo.DeliveredQuantity(ctx, userID)
	if err != nil {
		return nil, db.Classify(err, "sum donated quantity")
	}
	stats.QuantityDonated = quantities

	avg, total, err := s.ratings.DonorAverage(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.RatingCount = total
	if total > 0 {
		stats.AverageRating = &avg
	}
	return stats, nil
}
