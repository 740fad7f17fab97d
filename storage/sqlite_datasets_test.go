package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"plotvault/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupDatasetStorage creates a SQLite-backed dataset store over a fresh
// temp-file database.
func setupDatasetStorage(t *testing.T) *SQLiteDatasetStorage {
	dbPath := filepath.Join(t.TempDir(), "datasets.db")
	logger := zap.NewNop().Sugar()

	db, err := NewSQLite(dbPath, logger)
	require.NoError(t, err, "Failed to create SQLite database")

	t.Cleanup(func() { _ = db.Close() })

	return NewSQLiteDatasetStorage(db, logger)
}

func makeRecord(title string) *core.SimpleRecord {
	return &core.SimpleRecord{
		Title: title,
		Data:  map[string]interface{}{"reading": 42},
	}
}

func makeChart(title string) *core.PlotlyDataset {
	return &core.PlotlyDataset{
		Title:     title,
		ChartType: "scatter",
		Data: []map[string]interface{}{
			{"x": []interface{}{1, 2, 3}, "y": []interface{}{4, 5, 6}, "type": "scatter"},
		},
		Layout: map[string]interface{}{"title": title},
	}
}

func TestSQLiteDatasetStorage_CreateAndGetRecord(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	record := makeRecord("sensor readings")
	require.NoError(t, store.CreateRecord(ctx, record))

	assert.Equal(t, 1, record.ItemID, "First record should get item_id 1")
	assert.NotEmpty(t, record.ID, "Create should assign a row id")
	assert.False(t, record.CreatedAt.IsZero(), "Create should stamp created_at")
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)

	got, err := store.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "sensor readings", got.Title)
	// JSON numbers come back as float64
	assert.Equal(t, float64(42), got.Data["reading"])
}

func TestSQLiteDatasetStorage_GetRecord_NotFound(t *testing.T) {
	store := setupDatasetStorage(t)

	_, err := store.GetRecord(context.Background(), 999)

	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestSQLiteDatasetStorage_SequentialItemIDs(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	first := makeRecord("first")
	require.NoError(t, store.CreateRecord(ctx, first))

	// Records and charts share one item_id sequence
	chart := makeChart("second")
	require.NoError(t, store.CreateChart(ctx, chart))

	second := makeRecord("third")
	require.NoError(t, store.CreateRecord(ctx, second))

	assert.Equal(t, 1, first.ItemID)
	assert.Equal(t, 2, chart.ItemID)
	assert.Equal(t, 3, second.ItemID)
}

func TestSQLiteDatasetStorage_ListRecords_Pagination(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateRecord(ctx, makeRecord(fmt.Sprintf("record %d", i))))
	}

	page, err := store.ListRecords(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 3, page[0].ItemID)
	assert.Equal(t, 4, page[1].ItemID)

	count, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestSQLiteDatasetStorage_ListRecords_SkipsChartRows(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRecord(ctx, makeRecord("keep")))
	require.NoError(t, store.CreateChart(ctx, makeChart("skip")))
	require.NoError(t, store.CreateRecord(ctx, makeRecord("keep too")))

	records, err := store.ListRecords(ctx, 100, 0)
	require.NoError(t, err)

	require.Len(t, records, 2, "Chart rows should be skipped")
	assert.Equal(t, "keep", records[0].Title)
	assert.Equal(t, "keep too", records[1].Title)
}

func TestSQLiteDatasetStorage_ListRecords_Empty(t *testing.T) {
	store := setupDatasetStorage(t)

	records, err := store.ListRecords(context.Background(), 100, 0)

	require.NoError(t, err)
	assert.NotNil(t, records, "Empty result should be a non-nil slice")
	assert.Len(t, records, 0)
}

func TestSQLiteDatasetStorage_UpdateRecord(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	record := makeRecord("before")
	require.NoError(t, store.CreateRecord(ctx, record))

	changes := map[string]interface{}{
		"title": "after",
		"data":  map[string]interface{}{"reading": 7},
	}
	require.NoError(t, store.UpdateRecord(ctx, record.ItemID, changes))

	got, err := store.GetRecord(ctx, record.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, float64(7), got.Data["reading"])
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestSQLiteDatasetStorage_UpdateRecord_IgnoresUnknownColumns(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	record := makeRecord("stable")
	require.NoError(t, store.CreateRecord(ctx, record))

	changes := map[string]interface{}{
		"title":   "renamed",
		"item_id": 999,
	}
	require.NoError(t, store.UpdateRecord(ctx, record.ItemID, changes))

	got, err := store.GetRecord(ctx, record.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, record.ItemID, got.ItemID, "item_id is not updatable")
}

func TestSQLiteDatasetStorage_UpdateRecord_NotFound(t *testing.T) {
	store := setupDatasetStorage(t)

	err := store.UpdateRecord(context.Background(), 999, map[string]interface{}{"title": "x"})

	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestSQLiteDatasetStorage_DeleteRecord(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	record := makeRecord("short lived")
	require.NoError(t, store.CreateRecord(ctx, record))

	require.NoError(t, store.DeleteRecord(ctx, record.ItemID))

	_, err := store.GetRecord(ctx, record.ItemID)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestSQLiteDatasetStorage_DeleteRecord_NotFound(t *testing.T) {
	store := setupDatasetStorage(t)

	err := store.DeleteRecord(context.Background(), 999)

	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestSQLiteDatasetStorage_CreateAndGetChart(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	chart := makeChart("temperature")
	require.NoError(t, store.CreateChart(ctx, chart))

	assert.Equal(t, 1, chart.ItemID)
	assert.NotEmpty(t, chart.ID)

	got, err := store.GetChart(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "scatter", got.ChartType)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "scatter", got.Data[0]["type"])
	require.NotNil(t, got.Layout)
	assert.Equal(t, "temperature", got.Layout["title"])
}

func TestSQLiteDatasetStorage_CreateChart_NilLayout(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	chart := makeChart("bare")
	chart.Layout = nil
	require.NoError(t, store.CreateChart(ctx, chart))

	got, err := store.GetChart(ctx, chart.ItemID)
	require.NoError(t, err)
	assert.Nil(t, got.Layout)
}

func TestSQLiteDatasetStorage_ListCharts_SkipsRecordRows(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateChart(ctx, makeChart("chart one")))
	require.NoError(t, store.CreateRecord(ctx, makeRecord("not a chart")))
	require.NoError(t, store.CreateChart(ctx, makeChart("chart two")))

	charts, err := store.ListCharts(ctx)
	require.NoError(t, err)

	require.Len(t, charts, 2, "Record rows should be skipped")
	assert.Equal(t, "chart one", charts[0].Title)
	assert.Equal(t, "chart two", charts[1].Title)
}

func TestSQLiteDatasetStorage_CountCharts_MatchesDataFilter(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateChart(ctx, makeChart("chart")))
	require.NoError(t, store.CreateRecord(ctx, makeRecord("record")))

	count, err := store.CountCharts(ctx)
	require.NoError(t, err)

	// Records carry a data column too, so the field-presence filter counts both
	assert.Equal(t, int64(2), count)
}

func TestSQLiteDatasetStorage_UpdateChart(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	chart := makeChart("draft")
	require.NoError(t, store.CreateChart(ctx, chart))

	changes := map[string]interface{}{
		"chart_type": "bar",
		"data": []map[string]interface{}{
			{"x": []interface{}{"a", "b"}, "y": []interface{}{1, 2}, "type": "bar"},
		},
		"layout": map[string]interface{}{"title": "final"},
	}
	require.NoError(t, store.UpdateChart(ctx, chart.ItemID, changes))

	got, err := store.GetChart(ctx, chart.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "bar", got.ChartType)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "bar", got.Data[0]["type"])
	assert.Equal(t, "final", got.Layout["title"])
}

func TestSQLiteDatasetStorage_DeleteChart_NotFound(t *testing.T) {
	store := setupDatasetStorage(t)

	err := store.DeleteChart(context.Background(), 42)

	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestSQLiteDatasetStorage_CrossFamilyDelete(t *testing.T) {
	store := setupDatasetStorage(t)
	ctx := context.Background()

	record := makeRecord("reachable from either family")
	require.NoError(t, store.CreateRecord(ctx, record))

	// Single-item operations match on item_id alone, so the chart entry
	// points can address record rows
	require.NoError(t, store.DeleteChart(ctx, record.ItemID))

	_, err := store.GetRecord(ctx, record.ItemID)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestSQLiteDatasetStorage_HealthCheck(t *testing.T) {
	store := setupDatasetStorage(t)

	assert.NoError(t, store.HealthCheck(context.Background()))
	assert.NoError(t, store.EnsureIndexes(context.Background()))
}
