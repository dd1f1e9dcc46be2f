package analytics

import (
	"context"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/internal/analytics"
	"github.com/foodbridge/foodbridge-backend/internal/analytics/types"
)

type testAnalyticsService struct {
	calls    int
	donor    uuid.UUID
	query    analytics.WindowQuery
	response *types.ImpactQueryResponse
	err      error
}

func (s *testAnalyticsService) Impact(ctx context.Context, donorID uuid.UUID, q analytics.WindowQuery) (*types.ImpactQueryResponse, error) {
	s.calls++
	s.donor, s.query = donorID, q
	if s.err != nil {
		return nil, s.err
	}
	if s.response == nil {
		s.response = &types.ImpactQueryResponse{}
	}
	return s.response, nil
}
