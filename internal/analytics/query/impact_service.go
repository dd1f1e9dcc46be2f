package query

import (
	"context"
	"fmt"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/foodbridge/foodbridge-backend/internal/analytics/types"
	"github.com/foodbridge/foodbridge-backend/pkg/bigquery"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

// donorDonations scopes match rows to the donor's donations; match changes do
// not carry the donor id.
const donorDonations = `
WITH donor_donations AS (
  SELECT DISTINCT donation_id
  FROM %[1]s
  WHERE table_name = 'food_donations' AND donor_id = @donorID
)
`

const (
	listedSeriesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  COUNT(DISTINCT row_id) AS value
FROM %[1]s
WHERE table_name = 'food_donations'
  AND donor_id = @donorID
  AND op = 'insert'
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	expiredSeriesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  COUNT(DISTINCT row_id) AS value
FROM %[1]s
WHERE table_name = 'food_donations'
  AND donor_id = @donorID
  AND status = 'expired'
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	matchActionSeriesSQL = donorDonations + `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  COUNT(DISTINCT event_id) AS value
FROM %[1]s
WHERE table_name = 'donation_matches'
  AND action IN UNNEST(@actions)
  AND donation_id IN (SELECT donation_id FROM donor_donations)
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	topFoodTypesSQL = `
SELECT food_type AS label, COUNT(DISTINCT row_id) AS value
FROM %[1]s
WHERE table_name = 'food_donations'
  AND donor_id = @donorID
  AND op = 'insert'
  AND food_type IS NOT NULL
  AND occurred_at BETWEEN @start AND @end
GROUP BY food_type
ORDER BY value DESC
LIMIT 5
`

	cancelledRateSQL = donorDonations + `
SELECT SAFE_DIVIDE(
  COUNTIF(action = 'cancel'),
  NULLIF(COUNTIF(action IN ('claim', 'reorder')), 0)
) AS value
FROM %[1]s
WHERE table_name = 'donation_matches'
  AND donation_id IN (SELECT donation_id FROM donor_donations)
  AND occurred_at BETWEEN @start AND @end
`
)

// ImpactService provides the donor impact report from BigQuery donation_events.
type ImpactService interface {
	Query(ctx context.Context, req types.ImpactQueryRequest) (*types.ImpactQueryResponse, error)
}

type impactService struct {
	client   *bigquery.Client
	tableRef string
}

// NewImpactService builds a service backed by BigQuery.
func NewImpactService(client *bigquery.Client, project, dataset, table string) (ImpactService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if project == "" || dataset == "" || table == "" {
		return nil, fmt.Errorf("project, dataset, and table are required")
	}
	return &impactService{
		client:   client,
		tableRef: fmt.Sprintf("`%s.%s.%s`", project, dataset, table),
	}, nil
}

func (s *impactService) Query(ctx context.Context, req types.ImpactQueryRequest) (*types.ImpactQueryResponse, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	params := baseParams(req)

	listed, err := s.querySeries(ctx, fmt.Sprintf(listedSeriesSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	expired, err := s.querySeries(ctx, fmt.Sprintf(expiredSeriesSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	claimed, err := s.querySeries(ctx, fmt.Sprintf(matchActionSeriesSQL, s.tableRef),
		withActions(params, "claim", "reorder"))
	if err != nil {
		return nil, err
	}
	completed, err := s.querySeries(ctx, fmt.Sprintf(matchActionSeriesSQL, s.tableRef),
		withActions(params, "complete"))
	if err != nil {
		return nil, err
	}
	topFoodTypes, err := s.queryTopLabels(ctx, fmt.Sprintf(topFoodTypesSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	cancelledRate, err := s.queryRate(ctx, fmt.Sprintf(cancelledRateSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}

	return &types.ImpactQueryResponse{
		Listed:        listed,
		Claimed:       claimed,
		Completed:     completed,
		Expired:       expired,
		TopFoodTypes:  topFoodTypes,
		CancelledRate: cancelledRate,
	}, nil
}

// ValidateRequest checks the donor id and the time window.
func ValidateRequest(req types.ImpactQueryRequest) error {
	if _, err := uuid.Parse(req.DonorID); err != nil {
		return pkgerrors.Validation("donor_id", "donor id required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.Validation("end", "end must be after start")
	}
	return nil
}

func baseParams(req types.ImpactQueryRequest) []cloudbigquery.QueryParameter {
	return []cloudbigquery.QueryParameter{
		{Name: "donorID", Value: req.DonorID},
		{Name: "start", Value: req.Start},
		{Name: "end", Value: req.End},
	}
}

func withActions(params []cloudbigquery.QueryParameter, actions ...string) []cloudbigquery.QueryParameter {
	out := append([]cloudbigquery.QueryParameter(nil), params...)
	return append(out, cloudbigquery.QueryParameter{Name: "actions", Value: actions})
}

func (s *impactService) querySeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.TimeSeriesPoint, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}

	points := []types.TimeSeriesPoint{}
	for {
		var row struct {
			Day   string `bigquery:"day"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading series row: %w", err)
		}
		points = append(points, types.TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

func (s *impactService) queryTopLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query top labels: %w", err)
	}

	result := []types.LabelValue{}
	for {
		var row struct {
			Label string `bigquery:"label"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading top label row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *impactService) queryRate(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (float64, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return 0, fmt.Errorf("query rate: %w", err)
	}
	var row struct {
		Value cloudbigquery.NullFloat64 `bigquery:"value"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return 0, nil
		}
		return 0, fmt.Errorf("reading rate row: %w", err)
	}
	if !row.Value.Valid {
		return 0, nil
	}
	return row.Value.Float64, nil
}
