package adapter

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/model"
)

// AuditRow is one reconciliation decision exported to the warehouse.
// The warehouse is the analytical record of which raw records lost
// deduplication and why; the serving store only keeps the flags.
type AuditRow struct {
	RecordID     string    `bigquery:"record_id"`
	UserID       string    `bigquery:"user_id"`
	Source       string    `bigquery:"source"`
	SupersededBy string    `bigquery:"superseded_by"`
	StartTime    time.Time `bigquery:"start_time"`
	DurationSec  int64     `bigquery:"duration_seconds"`
	DecidedAt    time.Time `bigquery:"decided_at"`
}

// Warehouse is an interface for exporting reconciliation audit rows
type Warehouse interface {
	// InsertAuditRows appends deduplication decisions to the audit table
	InsertAuditRows(ctx context.Context, rows []*AuditRow) error
}

type bigqueryClient struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// BigQueryOption is a functional option for the warehouse client
type BigQueryOption func(*bigqueryClient)

// WithAuditTable overrides the audit table name
func WithAuditTable(table string) BigQueryOption {
	return func(bq *bigqueryClient) {
		bq.table = table
	}
}

// NewWarehouse creates a BigQuery-backed audit warehouse
func NewWarehouse(ctx context.Context, projectID, dataset string, opts ...BigQueryOption) (Warehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	bq := &bigqueryClient{
		client:  client,
		dataset: dataset,
		table:   "dedup_audit",
	}

	for _, opt := range opts {
		opt(bq)
	}

	return bq, nil
}

func (bq *bigqueryClient) InsertAuditRows(ctx context.Context, rows []*AuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := bq.client.Dataset(bq.dataset).Table(bq.table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert audit rows",
			goerr.V("dataset", bq.dataset), goerr.V("table", bq.table), goerr.V("count", len(rows)))
	}
	return nil
}

// NewAuditRow builds a warehouse row from a superseded record
func NewAuditRow(record *model.ActivityRecord, decidedAt time.Time) *AuditRow {
	return &AuditRow{
		RecordID:     string(record.ID),
		UserID:       string(record.UserID),
		Source:       string(record.Source),
		SupersededBy: string(record.SupersededBy),
		StartTime:    record.StartTime,
		DurationSec:  record.DurationSeconds,
		DecidedAt:    decidedAt,
	}
}
