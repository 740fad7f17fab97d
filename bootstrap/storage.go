package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"plotvault/config"
	"plotvault/storage"
	"plotvault/util"

	"go.uber.org/zap"
)

// InitMongoDB initializes the MongoDB connection with retry logic.
func InitMongoDB(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.MongoDB, error) {
	const maxRetries = 3
	retryDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

	uri := cfg.MongoURIWithCredentials()

	var mongoDB *storage.MongoDB
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			sugar.Infow("Retrying MongoDB connection",
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", retryDelays[attempt-1])
			time.Sleep(retryDelays[attempt-1])
		}

		mongoDB, lastErr = storage.NewMongoDB(uri, cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, sugar)
		if lastErr == nil {
			break
		}

		// Driver errors can echo the connection string, so scrub before logging
		sugar.Warnw("MongoDB connection attempt failed",
			"attempt", attempt+1,
			"error", util.SanitizeError(lastErr))
	}

	if lastErr != nil {
		// The configured URI goes into the banner, not the credentialed one
		errMsg := ClassifyConnectionError(lastErr, cfg.MongoDB.URI)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: MongoDB Connection Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to connect to MongoDB after %d attempts: %s", maxRetries+1, util.SanitizeError(lastErr))
	}

	return mongoDB, nil
}

// InitSQLite initializes the SQLite connection.
func InitSQLite(dirs DataDirectories, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(dirs.SQLite, sugar)
	if err != nil {
		errMsg := ClassifySQLiteError(err, dirs.SQLite)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: SQLite Initialization Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Info("SQLite initialized successfully")
	return sqlite, nil
}

// InitDatasetStorage initializes the configured system of record and returns
// the storage interface the API serves from. The returned *storage.SQLite is
// non-nil only for the sqlite backend; callers use it for pool stats.
func InitDatasetStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (storage.DatasetStorageInterface, *storage.SQLite, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		dirs := DataDirectoriesFromConfig(cfg)
		if err := EnsureDataDirectories(dirs, sugar); err != nil {
			return nil, nil, fmt.Errorf("failed to prepare data directories: %w", err)
		}

		sqlite, err := InitSQLite(dirs, sugar)
		if err != nil {
			return nil, nil, err
		}

		store := storage.NewSQLiteDatasetStorage(sqlite, sugar)
		sugar.Infow("Dataset storage initialized", "backend", config.BackendSQLite, "path", dirs.SQLite)
		return store, sqlite, nil

	case config.BackendMongoDB:
		mongoDB, err := InitMongoDB(cfg, sugar)
		if err != nil {
			return nil, nil, err
		}

		store := storage.NewDatasetStorage(mongoDB, cfg.MongoDB.Collection, sugar)
		sugar.Infow("Dataset storage initialized",
			"backend", config.BackendMongoDB,
			"database", cfg.MongoDB.Database,
			"collection", cfg.MongoDB.Collection)
		return store, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
