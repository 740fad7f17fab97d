// Package main is the entry point for the PlotVault dataset service.
package main

import (
	"context"
	"fmt"
	"os"

	"plotvault/bootstrap"
	"plotvault/cmd"
	_ "plotvault/docs"
)

// run initializes and starts the PlotVault server.
func run() error {
	ctx := context.Background()

	// Create and initialize application
	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Start all services
	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	app.WaitForShutdown()

	// Graceful shutdown
	app.Shutdown()

	return nil
}

// main is the entry point.
func main() {
	// Check if running as CLI command
	if len(os.Args) > 1 && os.Args[1] == "datasets" {
		// Strip "datasets" from os.Args since the command already knows its own name
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		datasetsCmd := cmd.NewDatasetsCmd()
		if err := datasetsCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Otherwise run as normal server
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
