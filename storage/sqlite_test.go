package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"plotvault/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestSQLite creates a test SQLite database
func setupTestSQLite(t *testing.T) *SQLite {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	logger := zap.NewNop().Sugar()

	sqlite, err := NewSQLite(dbPath, logger)
	require.NoError(t, err, "Failed to create SQLite database")
	require.NotNil(t, sqlite, "SQLite instance should not be nil")

	t.Cleanup(func() { _ = sqlite.Close() })

	return sqlite
}

func TestNewSQLite_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	logger := zap.NewNop().Sugar()

	sqlite, err := NewSQLite(dbPath, logger)
	require.NoError(t, err, "Should successfully create SQLite database")
	require.NotNil(t, sqlite.WriteDB, "Write pool should not be nil")
	require.NotNil(t, sqlite.ReadDB, "Read pool should not be nil")
	assert.Equal(t, dbPath, sqlite.Path, "Database path should match")

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")

	err = sqlite.Close()
	assert.NoError(t, err, "Should close database without error")
}

func TestNewSQLite_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	logger := zap.NewNop().Sugar()

	sqlite, err := NewSQLite(dbPath, logger)
	require.NoError(t, err, "Should create parent directories")
	defer sqlite.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Parent directory should exist")
	assert.True(t, info.IsDir(), "Should be a directory")
}

func TestNewSQLite_InMemory(t *testing.T) {
	logger := zap.NewNop().Sugar()

	sqlite, err := NewSQLite(":memory:", logger)
	require.NoError(t, err, "Should create in-memory database")
	defer sqlite.Close()

	// Both pools must see the same database
	_, err = sqlite.WriteDB.Exec(
		"INSERT INTO datasets (id, item_id, data, created_at, updated_at) VALUES ('a', 1, '{}', datetime('now'), datetime('now'))")
	require.NoError(t, err)

	var count int
	err = sqlite.ReadDB.QueryRow("SELECT COUNT(*) FROM datasets").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "Read pool should see rows written through the write pool")
}

func TestNewSQLite_RejectsTraversalPath(t *testing.T) {
	logger := zap.NewNop().Sugar()

	_, err := NewSQLite("../escape.db", logger)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database path")
}

func TestSQLite_ReadPoolRejectsWrites(t *testing.T) {
	sqlite := setupTestSQLite(t)

	_, err := sqlite.ReadDB.Exec(
		"INSERT INTO datasets (id, item_id, data, created_at, updated_at) VALUES ('b', 2, '{}', datetime('now'), datetime('now'))")

	assert.Error(t, err, "query_only pool must reject writes")
}

func TestSQLite_WithTransaction_Commit(t *testing.T) {
	sqlite := setupTestSQLite(t)

	err := sqlite.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO datasets (id, item_id, data, created_at, updated_at) VALUES ('c', 3, '{}', datetime('now'), datetime('now'))")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, sqlite.ReadDB.QueryRow("SELECT COUNT(*) FROM datasets WHERE item_id = 3").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLite_WithTransaction_RollbackOnError(t *testing.T) {
	sqlite := setupTestSQLite(t)

	err := sqlite.WithTransaction(func(tx *sql.Tx) error {
		_, execErr := tx.Exec(
			"INSERT INTO datasets (id, item_id, data, created_at, updated_at) VALUES ('d', 4, '{}', datetime('now'), datetime('now'))")
		require.NoError(t, execErr)
		return fmt.Errorf("forced failure")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forced failure")

	var count int
	require.NoError(t, sqlite.ReadDB.QueryRow("SELECT COUNT(*) FROM datasets WHERE item_id = 4").Scan(&count))
	assert.Equal(t, 0, count, "Insert should have been rolled back")
}

func TestSQLite_HealthCheck(t *testing.T) {
	sqlite := setupTestSQLite(t)

	assert.NoError(t, sqlite.HealthCheck(context.Background()))
}

func TestSQLite_CollectPoolStats(t *testing.T) {
	sqlite := setupTestSQLite(t)

	// Ensure at least one connection has been opened on the write pool
	require.NoError(t, sqlite.WriteDB.Ping())

	sqlite.CollectPoolStats()

	open := testutil.ToFloat64(metrics.SQLitePoolOpenConnections.WithLabelValues("write"))
	assert.GreaterOrEqual(t, open, float64(1))
}
