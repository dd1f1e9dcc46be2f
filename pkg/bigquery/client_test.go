package bigquery

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
)

func TestNormalizeTables(t *testing.T) {
	specs, err := normalizeTables([]TableSpec{{Name: " donation_events "}, {Name: "donation_events"}, {Name: "ratings"}})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "donation_events", specs[0].Name)

	_, err = normalizeTables([]TableSpec{{Name: "  "}})
	assert.ErrorIs(t, err, errTableNameRequired)
}

func TestTableMetadataPartitionsByField(t *testing.T) {
	schema := bigquery.Schema{{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true}}

	meta := tableMetadata(TableSpec{Name: "donation_events", Schema: schema, PartitionField: "occurred_at"})
	require.NotNil(t, meta.TimePartitioning)
	assert.Equal(t, "occurred_at", meta.TimePartitioning.Field)
	assert.Equal(t, bigquery.DayPartitioningType, meta.TimePartitioning.Type)

	assert.Nil(t, tableMetadata(TableSpec{Name: "t", Schema: schema}).TimePartitioning)
}

func TestAPIStatus(t *testing.T) {
	wrapped := fmt.Errorf("metadata: %w", &googleapi.Error{Code: http.StatusNotFound})
	assert.True(t, isNotFound(wrapped))
	assert.False(t, isConflict(wrapped))
	assert.True(t, isConflict(&googleapi.Error{Code: http.StatusConflict}))
	assert.Zero(t, apiStatus(fmt.Errorf("plain")))
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	ctx := context.Background()
	assert.ErrorIs(t, c.Ping(ctx), errClientNotInitialized)
	assert.ErrorIs(t, c.InsertRows(ctx, "donation_events", []any{1}), errClientNotInitialized)
	_, err := c.Query(ctx, "SELECT 1", nil)
	assert.ErrorIs(t, err, errClientNotInitialized)
	assert.NoError(t, c.Close())
}

func TestNewClientValidatesInput(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "foodbridge"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{}, nil)
	assert.ErrorIs(t, err, errDatasetRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "foodbridge"}, nil, TableSpec{})
	assert.ErrorIs(t, err, errTableNameRequired)
}
