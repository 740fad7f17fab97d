package storage

import (
	"context"

	"plotvault/core"
)

// DatasetStorageInterface defines the interface for dataset storage. Simple
// records and Plotly charts live in the same collection, keyed by a unique
// numeric item_id; a document counts as a chart when its data field holds a
// trace array.
//
// CreateRecord and CreateChart assign the next sequential item_id and the
// backend document id to the passed value, and stamp both timestamps.
// UpdateRecord and UpdateChart stamp updated_at on top of the given changes.
// Getters and mutations on a missing item_id return ErrDatasetNotFound.
type DatasetStorageInterface interface {
	// Simple data records
	ListRecords(ctx context.Context, limit, skip int) ([]core.SimpleRecord, error)
	CountRecords(ctx context.Context) (int64, error)
	GetRecord(ctx context.Context, itemID int) (*core.SimpleRecord, error)
	CreateRecord(ctx context.Context, record *core.SimpleRecord) error
	UpdateRecord(ctx context.Context, itemID int, changes map[string]interface{}) error
	DeleteRecord(ctx context.Context, itemID int) error

	// Plotly charts
	ListCharts(ctx context.Context) ([]core.PlotlyDataset, error)
	CountCharts(ctx context.Context) (int64, error)
	GetChart(ctx context.Context, itemID int) (*core.PlotlyDataset, error)
	CreateChart(ctx context.Context, chart *core.PlotlyDataset) error
	UpdateChart(ctx context.Context, itemID int, changes map[string]interface{}) error
	DeleteChart(ctx context.Context, itemID int) error

	HealthCheck(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// opResult maps an operation error to a metric result label.
func opResult(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
