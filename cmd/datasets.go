// Package cmd provides command-line interface commands for PlotVault.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"plotvault/config"
	"plotvault/core"
	"plotvault/storage"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags for datasets commands
var (
	outputJSON bool
	noColor    bool
	quiet      bool
)

// Security constants
const (
	maxImportFileSize = 10 * 1024 * 1024 // 10MB - protection against memory exhaustion
	defaultTimeout    = 5 * time.Minute  // Default context timeout for CLI operations
	exportPageSize    = 500              // Records fetched per page during export
)

// validateFilePath validates a file path to prevent path traversal attacks.
// It URL-decodes first so encoded traversal sequences cannot slip through,
// rejects any ".." component, and requires the cleaned absolute path to stay
// inside the current working directory.
func validateFilePath(filename string) error {
	decoded, err := url.QueryUnescape(filename)
	if err != nil {
		// If decoding fails, use original filename for safety
		decoded = filename
	}

	if strings.Contains(decoded, "..") || strings.Contains(filename, "..") {
		return fmt.Errorf("path traversal detected: '..' not allowed in file path")
	}

	cleanPath := filepath.Clean(decoded)

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	// Separator-aware check so a sibling like /work-dir-2 does not pass
	if absPath != workDir && !strings.HasPrefix(absPath, workDir+string(os.PathSeparator)) {
		return fmt.Errorf("path escapes current directory")
	}

	return nil
}

// NewDatasetsCmd creates the root datasets command with all subcommands.
func NewDatasetsCmd() *cobra.Command {
	datasetsCmd := &cobra.Command{
		Use:   "datasets",
		Short: "Manage stored datasets",
		Long: `Manage stored Plotly chart documents and simple data records directly
against the configured storage backend, without going through the HTTP API.

Useful for seeding demo content, inspecting stored documents, and moving
fixtures between environments.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Add persistent flags
	datasetsCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	datasetsCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	datasetsCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	// Add subcommands
	datasetsCmd.AddCommand(newListCmd())
	datasetsCmd.AddCommand(newGetCmd())
	datasetsCmd.AddCommand(newDeleteCmd())
	datasetsCmd.AddCommand(newExportCmd())
	datasetsCmd.AddCommand(newImportCmd())
	datasetsCmd.AddCommand(newSeedCmd())

	return datasetsCmd
}

// newListCmd creates the 'list' subcommand
func newListCmd() *cobra.Command {
	var (
		limit int
		skip  int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored datasets",
		Long:    "Display a table of stored charts and records with their type, title, and last update time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := initDatasetStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			charts, err := store.ListCharts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list charts: %w", err)
			}

			records, err := store.ListRecords(ctx, limit, skip)
			if err != nil {
				return fmt.Errorf("failed to list records: %w", err)
			}

			summaries := summarizeDatasets(charts, records)

			if outputJSON {
				return outputAsJSON(summaries)
			}

			renderDatasetsTable(summaries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of records to list")
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of records to skip")

	return cmd
}

// newGetCmd creates the 'get' subcommand
func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <item-id>",
		Aliases: []string{"show"},
		Short:   "Show a stored dataset",
		Long:    "Print the full stored document for an item id as indented JSON.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid item id %q: must be an integer", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := initDatasetStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			dataset, _, err := lookupDataset(ctx, store, itemID)
			if err != nil {
				return err
			}

			return outputAsJSON(dataset)
		},
	}
}

// newDeleteCmd creates the 'delete' subcommand
func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <item-id>",
		Aliases: []string{"rm", "remove"},
		Short:   "Delete a stored dataset",
		Long:    "Delete a chart or record by item id.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid item id %q: must be an integer", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := initDatasetStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			_, kind, err := lookupDataset(ctx, store, itemID)
			if err != nil {
				return err
			}

			// Confirm deletion unless force flag is set
			if !force {
				fmt.Printf("Are you sure you want to delete %s %d? [y/N]: ", kind, itemID)
				var response string
				_, err = fmt.Scanln(&response)
				if err != nil {
					// Treat empty input or EOF as "no"
					if err.Error() == "unexpected newline" || err.Error() == "EOF" {
						fmt.Println("\nDeletion cancelled")
						return nil
					}
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				if strings.ToLower(response) != "y" && strings.ToLower(response) != "yes" {
					fmt.Println("Deletion cancelled")
					return nil
				}
			}

			if kind == datasetKindChart {
				err = store.DeleteChart(ctx, itemID)
			} else {
				err = store.DeleteRecord(ctx, itemID)
			}
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", kind, err)
			}

			if !quiet {
				successColor.Printf("✓ Deleted %s %d\n", kind, itemID)
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

// newExportCmd creates the 'export' subcommand
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export datasets to a fixtures file",
		Long: `Export all stored datasets to a fixtures file. The extension picks the
format: .json writes JSON, anything else writes YAML. With no file argument
the fixtures are written to stdout as YAML.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate the target path before dialing storage
			filename := ""
			if len(args) > 0 {
				filename = args[0]
				if err := validateFilePath(filename); err != nil {
					return fmt.Errorf("invalid file path: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := initDatasetStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			fixtures, err := collectFixtures(ctx, store)
			if err != nil {
				return err
			}

			data, err := marshalFixtures(fixtures, filepath.Ext(filename))
			if err != nil {
				return fmt.Errorf("failed to marshal fixtures: %w", err)
			}

			if filename != "" {
				if err := os.WriteFile(filename, data, 0644); err != nil {
					return fmt.Errorf("failed to write file: %w", err)
				}
				if !quiet {
					successColor.Printf("✓ Exported %d charts and %d records to %s\n",
						len(fixtures.Charts), len(fixtures.Records), filename)
				}
			} else {
				fmt.Print(string(data))
			}

			return nil
		},
	}
}

// newImportCmd creates the 'import' subcommand
func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import datasets from a fixtures file",
		Long: `Import charts and records from a JSON or YAML fixtures file. Each entry
passes the same validation the HTTP API applies, and every import assigns
fresh item ids.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			filename := args[0]

			if err := validateFilePath(filename); err != nil {
				return fmt.Errorf("invalid file path: %w", err)
			}

			// Check file size before reading to prevent memory exhaustion
			fileInfo, err := os.Stat(filename)
			if err != nil {
				return fmt.Errorf("failed to stat file: %w", err)
			}
			if fileInfo.Size() > maxImportFileSize {
				return fmt.Errorf("file too large: maximum size is %d bytes (%d MB), got %d bytes",
					maxImportFileSize, maxImportFileSize/(1024*1024), fileInfo.Size())
			}

			data, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			fixtures, err := unmarshalFixtures(data, filepath.Ext(filename))
			if err != nil {
				return fmt.Errorf("failed to parse fixtures: %w", err)
			}

			store, cleanup, err := initDatasetStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			imported, failed := importFixtures(ctx, store, fixtures)

			if !quiet {
				fmt.Printf("\nImported %d datasets, %d failed\n", imported, failed)
			}

			if failed > 0 {
				return fmt.Errorf("%d datasets failed to import", failed)
			}
			return nil
		},
	}
}

// newSeedCmd creates the 'seed' subcommand
func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo datasets",
		Long: `Insert a small set of demo charts and records for local development.
Running it again inserts fresh copies under new item ids.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := initDatasetStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			imported, failed := importFixtures(ctx, store, demoFixtures())

			if !quiet {
				fmt.Printf("\nSeeded %d demo datasets, %d failed\n", imported, failed)
			}

			if failed > 0 {
				return fmt.Errorf("%d demo datasets failed to seed", failed)
			}
			return nil
		},
	}
}

// Dataset kinds as shown to the operator.
const (
	datasetKindChart  = "chart"
	datasetKindRecord = "record"
)

// lookupDataset fetches the document behind an item id, trying charts first.
// The second return names which family matched.
func lookupDataset(ctx context.Context, store storage.DatasetStorageInterface, itemID int) (interface{}, string, error) {
	chart, err := store.GetChart(ctx, itemID)
	if err == nil {
		return chart, datasetKindChart, nil
	}
	if !errors.Is(err, storage.ErrDatasetNotFound) {
		return nil, "", fmt.Errorf("failed to get chart: %w", err)
	}

	record, err := store.GetRecord(ctx, itemID)
	if err == nil {
		return record, datasetKindRecord, nil
	}
	if !errors.Is(err, storage.ErrDatasetNotFound) {
		return nil, "", fmt.Errorf("failed to get record: %w", err)
	}

	return nil, "", fmt.Errorf("dataset %d not found", itemID)
}

// collectFixtures reads every stored chart and record into a fixtures document.
func collectFixtures(ctx context.Context, store storage.DatasetStorageInterface) (*datasetFixtures, error) {
	charts, err := store.ListCharts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list charts: %w", err)
	}

	var records []core.SimpleRecord
	for skip := 0; ; skip += exportPageSize {
		page, err := store.ListRecords(ctx, exportPageSize, skip)
		if err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
		records = append(records, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	return fixturesFromStored(charts, records), nil
}

// importFixtures validates and stores every fixture entry, reporting per-entry
// failures the way a partially bad file deserves: keep going, count both.
func importFixtures(ctx context.Context, store storage.DatasetStorageInterface, fixtures *datasetFixtures) (imported, failed int) {
	now := time.Now()

	for i, fc := range fixtures.Charts {
		label := fc.Title
		if label == "" {
			label = fmt.Sprintf("chart #%d", i+1)
		}

		payload := &core.PlotlyCreate{
			Title:       fc.Title,
			Description: fc.Description,
			ChartType:   fc.ChartType,
			Data:        fc.Data,
			Layout:      fc.Layout,
		}
		if err := payload.Validate(); err != nil {
			errorColor.Printf("✗ Invalid chart %s: %v\n", label, err)
			failed++
			continue
		}

		chart := core.NewPlotlyDataset(payload, now)
		if err := store.CreateChart(ctx, chart); err != nil {
			errorColor.Printf("✗ Failed to import chart %s: %v\n", label, err)
			failed++
			continue
		}

		if !quiet {
			successColor.Printf("✓ Imported chart: %s (item_id %d)\n", label, chart.ItemID)
		}
		imported++
	}

	for i, fr := range fixtures.Records {
		label := fr.Title
		if label == "" {
			label = fmt.Sprintf("record #%d", i+1)
		}

		payload := &core.SimpleCreate{
			Data:        fr.Data,
			Title:       fr.Title,
			Description: fr.Description,
		}
		if err := payload.Validate(); err != nil {
			errorColor.Printf("✗ Invalid record %s: %v\n", label, err)
			failed++
			continue
		}

		record := core.NewSimpleRecord(payload, now)
		if err := store.CreateRecord(ctx, record); err != nil {
			errorColor.Printf("✗ Failed to import record %s: %v\n", label, err)
			failed++
			continue
		}

		if !quiet {
			successColor.Printf("✓ Imported record: %s (item_id %d)\n", label, record.ItemID)
		}
		imported++
	}

	return imported, failed
}

// demoFixtures returns the seed content: a few representative charts and one
// free-form record.
func demoFixtures() *datasetFixtures {
	return &datasetFixtures{
		Charts: []chartFixture{
			{
				Title:       "Quarterly Revenue",
				Description: "Demo bar chart",
				ChartType:   string(core.ChartTypeBar),
				Data: []map[string]interface{}{
					{
						"type": "bar",
						"x":    []interface{}{"Q1", "Q2", "Q3", "Q4"},
						"y":    []interface{}{120, 185, 92, 224},
					},
				},
				Layout: map[string]interface{}{
					"title": "Quarterly Revenue (demo)",
				},
			},
			{
				Title:       "Daily Active Users",
				Description: "Demo line chart",
				ChartType:   string(core.ChartTypeLine),
				Data: []map[string]interface{}{
					{
						"type": "scatter",
						"mode": "lines+markers",
						"x":    []interface{}{"Mon", "Tue", "Wed", "Thu", "Fri"},
						"y":    []interface{}{340, 355, 392, 371, 410},
					},
				},
				Layout: map[string]interface{}{
					"title": "Daily Active Users (demo)",
				},
			},
			{
				Title:     "Response Time Distribution",
				ChartType: string(core.ChartTypeHistogram),
				Data: []map[string]interface{}{
					{
						"type": "histogram",
						"x":    []interface{}{12, 15, 13, 44, 19, 21, 16, 38, 14, 17},
					},
				},
			},
		},
		Records: []recordFixture{
			{
				Title:       "Deployment marker",
				Description: "Demo free-form record",
				Data: map[string]interface{}{
					"service": "plotvault",
					"version": "1.0.0",
					"region":  "local",
				},
			},
		},
	}
}

// initDatasetStore opens the configured storage backend for CLI use.
// Returns the store and a cleanup function.
func initDatasetStore(ctx context.Context) (storage.DatasetStorageInterface, func(), error) {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.LoadSecrets(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	sugar := logger.Sugar()

	// Show a spinner while connecting; MongoDB dials can take a moment
	var s *spinner.Spinner
	if !outputJSON && !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Connecting to storage..."
		s.Start()
	}

	store, err := openStore(cfg, sugar)

	if s != nil {
		s.Stop()
	}

	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			sugar.Warnf("Failed to close storage during cleanup: %v", err)
		}
		if err := logger.Sync(); err != nil {
			// Sync errors on stderr are common and can be ignored in most cases
			// but we log them for debugging purposes
			sugar.Debugf("Failed to sync logger during cleanup: %v", err)
		}
	}

	return store, cleanup, nil
}

// openStore builds the dataset store for the configured backend.
func openStore(cfg *config.Config, sugar *zap.SugaredLogger) (storage.DatasetStorageInterface, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		sqlite, err := storage.NewSQLite(cfg.GetSQLitePath(), sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		return storage.NewSQLiteDatasetStorage(sqlite, sugar), nil

	case config.BackendMongoDB:
		db, err := storage.NewMongoDB(cfg.MongoURIWithCredentials(), cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		return storage.NewDatasetStorage(db, cfg.MongoDB.Collection, sugar), nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// outputAsJSON outputs data as JSON to stdout.
func outputAsJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
