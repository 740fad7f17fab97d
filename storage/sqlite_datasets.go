package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plotvault/core"
	"plotvault/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const datasetColumns = "id, item_id, title, description, chart_type, data, layout, created_at, updated_at"

// datasetUpdateColumns allowlists the columns a field-change map may touch
var datasetUpdateColumns = map[string]bool{
	"title":       true,
	"description": true,
	"chart_type":  true,
	"data":        true,
	"layout":      true,
}

// SQLiteDatasetStorage implements DatasetStorageInterface on SQLite. The
// datasets table mirrors the shared-collection layout: records keep a JSON
// object in data, charts keep a trace array.
type SQLiteDatasetStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteDatasetStorage creates a new SQLite dataset storage handler
func NewSQLiteDatasetStorage(db *SQLite, logger *zap.SugaredLogger) *SQLiteDatasetStorage {
	return &SQLiteDatasetStorage{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// datasetRow is the raw scanned form shared by both families
type datasetRow struct {
	id          string
	itemID      int
	title       sql.NullString
	description sql.NullString
	chartType   sql.NullString
	data        sql.NullString
	layout      sql.NullString
	createdAt   time.Time
	updatedAt   time.Time
}

func scanDatasetRow(sc rowScanner) (*datasetRow, error) {
	var r datasetRow
	err := sc.Scan(
		&r.id,
		&r.itemID,
		&r.title,
		&r.description,
		&r.chartType,
		&r.data,
		&r.layout,
		&r.createdAt,
		&r.updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// toRecord fails when the data column holds a trace array instead of an
// object, which marks the row as a chart.
func (r *datasetRow) toRecord() (*core.SimpleRecord, error) {
	rec := core.SimpleRecord{
		ID:          r.id,
		ItemID:      r.itemID,
		Title:       r.title.String,
		Description: r.description.String,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
	if r.data.Valid && r.data.String != "" {
		if err := json.Unmarshal([]byte(r.data.String), &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
		}
	}
	return &rec, nil
}

// toChart fails when the data column holds an object instead of a trace array
func (r *datasetRow) toChart() (*core.PlotlyDataset, error) {
	ch := core.PlotlyDataset{
		ID:          r.id,
		ItemID:      r.itemID,
		Title:       r.title.String,
		Description: r.description.String,
		ChartType:   r.chartType.String,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
	if r.data.Valid && r.data.String != "" {
		if err := json.Unmarshal([]byte(r.data.String), &ch.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chart data: %w", err)
		}
	}
	if r.layout.Valid && r.layout.String != "" {
		if err := json.Unmarshal([]byte(r.layout.String), &ch.Layout); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chart layout: %w", err)
		}
	}
	return &ch, nil
}

// ListRecords retrieves simple records with pagination. Chart rows fall out
// of the page because their data column does not decode as an object.
func (s *SQLiteDatasetStorage) ListRecords(ctx context.Context, limit, skip int) ([]core.SimpleRecord, error) {
	query := "SELECT " + datasetColumns + " FROM datasets LIMIT ? OFFSET ?"
	rows, err := s.db.ReadDB.QueryContext(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]core.SimpleRecord, 0)
	for rows.Next() {
		row, err := scanDatasetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := row.toRecord()
		if err != nil {
			s.logger.Debugw("Skipping non-record row", "item_id", row.itemID)
			continue
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// CountRecords returns the total number of rows
func (s *SQLiteDatasetStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM datasets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// GetRecord retrieves a single record by item id
func (s *SQLiteDatasetStorage) GetRecord(ctx context.Context, itemID int) (*core.SimpleRecord, error) {
	query := "SELECT " + datasetColumns + " FROM datasets WHERE item_id = ?"
	row, err := scanDatasetRow(s.db.ReadDB.QueryRowContext(ctx, query, itemID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return row.toRecord()
}

// CreateRecord inserts a new record, assigning the next sequential item id.
// The generated item id and row id are written back to record.
func (s *SQLiteDatasetStorage) CreateRecord(ctx context.Context, record *core.SimpleRecord) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("create_record", opResult(err)).Inc()
	}()

	next, err := s.nextItemID(ctx)
	if err != nil {
		return err
	}

	dataJSON, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}

	now := time.Now().UTC()
	record.ID = uuid.New().String()
	record.ItemID = next
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO datasets (id, item_id, title, description, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.WriteDB.ExecContext(ctx, query,
		record.ID,
		record.ItemID,
		record.Title,
		record.Description,
		string(dataJSON),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateItemID
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// UpdateRecord applies the given field changes to a record and stamps updated_at
func (s *SQLiteDatasetStorage) UpdateRecord(ctx context.Context, itemID int, changes map[string]interface{}) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("update_record", opResult(err)).Inc()
	}()
	return s.update(ctx, itemID, changes, "record")
}

// DeleteRecord removes a record by item id
func (s *SQLiteDatasetStorage) DeleteRecord(ctx context.Context, itemID int) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("delete_record", opResult(err)).Inc()
	}()
	return s.delete(ctx, itemID, "record")
}

// ListCharts retrieves all rows carrying data. Record rows are skipped when
// their data column fails to decode as a trace array.
func (s *SQLiteDatasetStorage) ListCharts(ctx context.Context) ([]core.PlotlyDataset, error) {
	query := "SELECT " + datasetColumns + " FROM datasets WHERE data IS NOT NULL"
	rows, err := s.db.ReadDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query charts: %w", err)
	}
	defer rows.Close()

	charts := make([]core.PlotlyDataset, 0)
	for rows.Next() {
		row, err := scanDatasetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chart: %w", err)
		}
		ch, err := row.toChart()
		if err != nil {
			s.logger.Debugw("Skipping non-chart row", "item_id", row.itemID)
			continue
		}
		charts = append(charts, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating charts: %w", err)
	}

	return charts, nil
}

// CountCharts returns the number of rows carrying data
func (s *SQLiteDatasetStorage) CountCharts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM datasets WHERE data IS NOT NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count charts: %w", err)
	}
	return count, nil
}

// GetChart retrieves a single chart by item id
func (s *SQLiteDatasetStorage) GetChart(ctx context.Context, itemID int) (*core.PlotlyDataset, error) {
	query := "SELECT " + datasetColumns + " FROM datasets WHERE item_id = ?"
	row, err := scanDatasetRow(s.db.ReadDB.QueryRowContext(ctx, query, itemID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get chart: %w", err)
	}
	return row.toChart()
}

// CreateChart inserts a new chart, assigning the next sequential item id.
// The generated item id and row id are written back to chart.
func (s *SQLiteDatasetStorage) CreateChart(ctx context.Context, chart *core.PlotlyDataset) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("create_chart", opResult(err)).Inc()
	}()

	next, err := s.nextItemID(ctx)
	if err != nil {
		return err
	}

	dataJSON, err := json.Marshal(chart.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal chart data: %w", err)
	}

	var layoutArg interface{}
	if chart.Layout != nil {
		encoded, err := json.Marshal(chart.Layout)
		if err != nil {
			return fmt.Errorf("failed to marshal chart layout: %w", err)
		}
		layoutArg = string(encoded)
	}

	now := time.Now().UTC()
	chart.ID = uuid.New().String()
	chart.ItemID = next
	chart.CreatedAt = now
	chart.UpdatedAt = now

	query := `
		INSERT INTO datasets (id, item_id, title, description, chart_type, data, layout, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.WriteDB.ExecContext(ctx, query,
		chart.ID,
		chart.ItemID,
		chart.Title,
		chart.Description,
		chart.ChartType,
		string(dataJSON),
		layoutArg,
		chart.CreatedAt,
		chart.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateItemID
		}
		return fmt.Errorf("failed to insert chart: %w", err)
	}

	return nil
}

// UpdateChart applies the given field changes to a chart and stamps updated_at
func (s *SQLiteDatasetStorage) UpdateChart(ctx context.Context, itemID int, changes map[string]interface{}) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("update_chart", opResult(err)).Inc()
	}()
	return s.update(ctx, itemID, changes, "chart")
}

// DeleteChart removes a chart by item id
func (s *SQLiteDatasetStorage) DeleteChart(ctx context.Context, itemID int) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("delete_chart", opResult(err)).Inc()
	}()
	return s.delete(ctx, itemID, "chart")
}

// HealthCheck pings both connection pools
func (s *SQLiteDatasetStorage) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// EnsureIndexes is a no-op: the schema-level UNIQUE constraint covers item_id
func (s *SQLiteDatasetStorage) EnsureIndexes(ctx context.Context) error {
	return nil
}

// Close closes the underlying connection pools
func (s *SQLiteDatasetStorage) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteDatasetStorage) nextItemID(ctx context.Context) (int, error) {
	var last int
	err := s.db.ReadDB.QueryRowContext(ctx, "SELECT item_id FROM datasets ORDER BY item_id DESC LIMIT 1").Scan(&last)
	if err == sql.ErrNoRows {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find last item id: %w", err)
	}
	return last + 1, nil
}

// update runs the shared exists-then-set flow for both families. Unlike the
// Mongo backend, SQLite counts identical-value writes as changes, so a
// matched update always reports success.
func (s *SQLiteDatasetStorage) update(ctx context.Context, itemID int, changes map[string]interface{}, kind string) error {
	var exists int
	err := s.db.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM datasets WHERE item_id = ?", itemID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", kind, err)
	}
	if exists == 0 {
		return ErrDatasetNotFound
	}

	setClauses := make([]string, 0, len(changes)+1)
	args := make([]interface{}, 0, len(changes)+2)
	for col, val := range changes {
		if !datasetUpdateColumns[col] {
			continue
		}
		if col == "data" || col == "layout" {
			encoded, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("failed to marshal %s %s: %w", kind, col, err)
			}
			val = string(encoded)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC(), itemID)

	query := "UPDATE datasets SET " + strings.Join(setClauses, ", ") + " WHERE item_id = ?"
	if _, err := s.db.WriteDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}

	return nil
}

func (s *SQLiteDatasetStorage) delete(ctx context.Context, itemID int, kind string) error {
	result, err := s.db.WriteDB.ExecContext(ctx, "DELETE FROM datasets WHERE item_id = ?", itemID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDatasetNotFound
	}

	return nil
}
