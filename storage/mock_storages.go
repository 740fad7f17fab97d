package storage

import (
	"context"

	"plotvault/core"
)

// MockDatasetStorage implements DatasetStorageInterface for testing. Each
// operation delegates to the matching function field when set and falls back
// to an empty success otherwise.
type MockDatasetStorage struct {
	ListRecordsFunc  func(ctx context.Context, limit, skip int) ([]core.SimpleRecord, error)
	CountRecordsFunc func(ctx context.Context) (int64, error)
	GetRecordFunc    func(ctx context.Context, itemID int) (*core.SimpleRecord, error)
	CreateRecordFunc func(ctx context.Context, record *core.SimpleRecord) error
	UpdateRecordFunc func(ctx context.Context, itemID int, changes map[string]interface{}) error
	DeleteRecordFunc func(ctx context.Context, itemID int) error

	ListChartsFunc  func(ctx context.Context) ([]core.PlotlyDataset, error)
	CountChartsFunc func(ctx context.Context) (int64, error)
	GetChartFunc    func(ctx context.Context, itemID int) (*core.PlotlyDataset, error)
	CreateChartFunc func(ctx context.Context, chart *core.PlotlyDataset) error
	UpdateChartFunc func(ctx context.Context, itemID int, changes map[string]interface{}) error
	DeleteChartFunc func(ctx context.Context, itemID int) error

	HealthCheckFunc func(ctx context.Context) error
}

func NewMockDatasetStorage() *MockDatasetStorage {
	return &MockDatasetStorage{}
}

func (m *MockDatasetStorage) ListRecords(ctx context.Context, limit, skip int) ([]core.SimpleRecord, error) {
	if m.ListRecordsFunc != nil {
		return m.ListRecordsFunc(ctx, limit, skip)
	}
	return []core.SimpleRecord{}, nil
}

func (m *MockDatasetStorage) CountRecords(ctx context.Context) (int64, error) {
	if m.CountRecordsFunc != nil {
		return m.CountRecordsFunc(ctx)
	}
	return 0, nil
}

func (m *MockDatasetStorage) GetRecord(ctx context.Context, itemID int) (*core.SimpleRecord, error) {
	if m.GetRecordFunc != nil {
		return m.GetRecordFunc(ctx, itemID)
	}
	return nil, ErrDatasetNotFound
}

func (m *MockDatasetStorage) CreateRecord(ctx context.Context, record *core.SimpleRecord) error {
	if m.CreateRecordFunc != nil {
		return m.CreateRecordFunc(ctx, record)
	}
	record.ItemID = 1
	record.ID = "000000000000000000000001"
	return nil
}

func (m *MockDatasetStorage) UpdateRecord(ctx context.Context, itemID int, changes map[string]interface{}) error {
	if m.UpdateRecordFunc != nil {
		return m.UpdateRecordFunc(ctx, itemID, changes)
	}
	return nil
}

func (m *MockDatasetStorage) DeleteRecord(ctx context.Context, itemID int) error {
	if m.DeleteRecordFunc != nil {
		return m.DeleteRecordFunc(ctx, itemID)
	}
	return nil
}

func (m *MockDatasetStorage) ListCharts(ctx context.Context) ([]core.PlotlyDataset, error) {
	if m.ListChartsFunc != nil {
		return m.ListChartsFunc(ctx)
	}
	return []core.PlotlyDataset{}, nil
}

func (m *MockDatasetStorage) CountCharts(ctx context.Context) (int64, error) {
	if m.CountChartsFunc != nil {
		return m.CountChartsFunc(ctx)
	}
	return 0, nil
}

func (m *MockDatasetStorage) GetChart(ctx context.Context, itemID int) (*core.PlotlyDataset, error) {
	if m.GetChartFunc != nil {
		return m.GetChartFunc(ctx, itemID)
	}
	return nil, ErrDatasetNotFound
}

func (m *MockDatasetStorage) CreateChart(ctx context.Context, chart *core.PlotlyDataset) error {
	if m.CreateChartFunc != nil {
		return m.CreateChartFunc(ctx, chart)
	}
	chart.ItemID = 1
	chart.ID = "000000000000000000000001"
	return nil
}

func (m *MockDatasetStorage) UpdateChart(ctx context.Context, itemID int, changes map[string]interface{}) error {
	if m.UpdateChartFunc != nil {
		return m.UpdateChartFunc(ctx, itemID, changes)
	}
	return nil
}

func (m *MockDatasetStorage) DeleteChart(ctx context.Context, itemID int) error {
	if m.DeleteChartFunc != nil {
		return m.DeleteChartFunc(ctx, itemID)
	}
	return nil
}

func (m *MockDatasetStorage) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

func (m *MockDatasetStorage) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (m *MockDatasetStorage) Close(ctx context.Context) error {
	return nil
}
