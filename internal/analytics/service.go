package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/internal/analytics/query"
	"github.com/foodbridge/foodbridge-backend/internal/analytics/types"
	"github.com/foodbridge/foodbridge-backend/pkg/bigquery"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

// Service provides donor impact reports built from donation lifecycle events.
type Service interface {
	Impact(ctx context.Context, donorID uuid.UUID, q WindowQuery) (*types.ImpactQueryResponse, error)
}

type service struct {
	impact query.ImpactService
	now    func() time.Time
}

// NewService builds an analytics service backed by BigQuery.
func NewService(client *bigquery.Client, project, dataset, table string) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	impact, err := query.NewImpactService(client, project, dataset, table)
	if err != nil {
		return nil, err
	}
	return newService(impact), nil
}

func newService(impact query.ImpactService) *service {
	return &service{impact: impact, now: time.Now}
}

// Impact resolves q against the current time and reports the donor's
// listings, claims, completions and expiries inside that window.
func (s *service) Impact(ctx context.Context, donorID uuid.UUID, q WindowQuery) (*types.ImpactQueryResponse, error) {
	if donorID == uuid.Nil {
		return nil, pkgerrors.Validation("donor_id", "donor id required")
	}
	window, err := q.Resolve(s.now())
	if err != nil {
		return nil, err
	}

	report, err := s.impact.Query(ctx, types.ImpactQueryRequest{
		DonorID: donorID.String(),
		Start:   window.Start,
		End:     window.End,
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "impact report unavailable")
	}
	report.From, report.To = window.Start, window.End
	return report, nil
}
