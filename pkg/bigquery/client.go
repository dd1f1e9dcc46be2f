package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errSQLRequired          = errors.New("sql query is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Pinger is satisfied by anything the readiness probe can check.
type Pinger interface {
	Ping(context.Context) error
}

// TableSpec declares a table the client depends on. Schema is only used when
// the table has to be created.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
}

// Client wraps one dataset of the configured project.
type Client struct {
	bq       *bigquery.Client
	dataset  *bigquery.Dataset
	location string
	create   bool
	tables   []TableSpec
}

// NewClient connects to BigQuery and makes sure the dataset and every table in
// tables exist. Missing tables are created when cfg.CreateTables is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger, tables ...TableSpec) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	specs, err := normalizeTables(tables)
	if err != nil {
		return nil, err
	}

	bq, err := bigquery.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	if loc := strings.TrimSpace(cfg.Location); loc != "" {
		bq.Location = loc
	}

	c := &Client{
		bq:       bq,
		dataset:  bq.Dataset(datasetID),
		location: strings.TrimSpace(cfg.Location),
		create:   cfg.CreateTables,
		tables:   specs,
	}
	if err := c.provision(ctx, logg); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"dataset": datasetID, "tables": len(specs)})
		logg.Info(ctx, "bigquery client ready")
	}
	return c, nil
}

func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func normalizeTables(tables []TableSpec) ([]TableSpec, error) {
	out := make([]TableSpec, 0, len(tables))
	seen := make(map[string]bool, len(tables))
	for _, spec := range tables {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return nil, errTableNameRequired
		}
		if seen[spec.Name] {
			continue
		}
		seen[spec.Name] = true
		out = append(out, spec)
	}
	return out, nil
}

// provision checks the dataset and creates absent tables when allowed.
func (c *Client) provision(ctx context.Context, logg *logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("reading dataset %q: %w", c.dataset.DatasetID, err)
	}

	for _, spec := range c.tables {
		_, err := c.dataset.Table(spec.Name).Metadata(ctx)
		switch {
		case err == nil:
			continue
		case !isNotFound(err):
			return fmt.Errorf("reading table %q: %w", spec.Name, err)
		case !c.create || len(spec.Schema) == 0:
			return fmt.Errorf("table %q does not exist", spec.Name)
		}

		if err := c.dataset.Table(spec.Name).Create(ctx, tableMetadata(spec)); err != nil && !isConflict(err) {
			return fmt.Errorf("creating table %q: %w", spec.Name, err)
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "table", spec.Name), "bigquery table created")
		}
	}
	return nil
}

func tableMetadata(spec TableSpec) *bigquery.TableMetadata {
	meta := &bigquery.TableMetadata{Schema: spec.Schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: spec.PartitionField,
		}
	}
	return meta
}

// Ping confirms the dataset and declared tables are still reachable. It never
// creates anything.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return fmt.Errorf("dataset %q: %w", c.dataset.DatasetID, err)
	}
	for _, spec := range c.tables {
		if _, err := c.dataset.Table(spec.Name).Metadata(ctx); err != nil {
			return fmt.Errorf("table %q: %w", spec.Name, err)
		}
	}
	return nil
}

// InsertRows streams rows into table. Rows must be structs or ValueSavers.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.bq == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// Query runs a parameterized statement in the client's location.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.bq == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errSQLRequired
	}
	q := c.bq.Query(sql)
	q.Parameters = params
	q.Location = c.location
	return q.Read(ctx)
}

// Close releases the underlying client. It is safe on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool { return apiStatus(err) == http.StatusNotFound }

func isConflict(err error) bool { return apiStatus(err) == http.StatusConflict }

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
