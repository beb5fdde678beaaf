package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/ble/tinyble"
	"github.com/notifd/notifd/pkg/db"
	"github.com/notifd/notifd/pkg/manager"
	notifdmcp "github.com/notifd/notifd/pkg/mcp"
	"github.com/notifd/notifd/pkg/protocol/schema"
)

func main() {
	// Logging must go to stderr — stdout is the MCP transport
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/notifd/notifd.db)")
	flag.Parse()

	ctx := context.Background()

	// Open database
	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Str("path", database.Path()).Msg("Database opened")

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Bootstrap if needed (first run)
	needsBootstrap, err := database.NeedsBootstrap(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to check bootstrap status")
	}
	if needsBootstrap {
		log.Info().Msg("First run detected, bootstrapping database...")
		if err := database.Bootstrap(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to bootstrap database")
		}
		log.Info().Msg("Database bootstrapped successfully")
	}

	// Load configuration
	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Try to bring up the Bluetooth adapter; fall back to NullScanner
	var scanner ble.Scanner
	scanner, err = tinyble.NewScanner()
	if err != nil {
		log.Warn().Err(err).Msg("Bluetooth adapter unavailable, using null scanner")
		scanner = ble.NewNullScanner()
	}

	mgr := manager.New(scanner, bleConfig(cfg.BLE))
	defer mgr.Close()

	validator := schema.NewValidator()

	// Create and start MCP server
	mcpServer := notifdmcp.NewServer(mgr, validator)

	log.Info().Msg("Starting MCP server on stdio")

	if err := mcpServer.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}

// bleConfig maps the persisted tuning to a manager.Config. Zero values
// fall through to the manager's built-in defaults.
func bleConfig(c *db.BLEConfig) manager.Config {
	if c == nil {
		return manager.Config{}
	}
	return manager.Config{
		NamePrefix:            c.NamePrefix,
		ScanTimeout:           c.ScanTimeout,
		ConnectTimeout:        c.ConnectTimeout,
		MaxConcurrentConnects: c.MaxConcurrentConnects,
		QueueCapacity:         c.QueueCapacity,
		BackoffBase:           c.BackoffBase,
		BackoffCap:            c.BackoffCap,
		RetryWindow:           c.RetryWindow,
		InterFrameDelay:       c.InterFrameDelay,
	}
}
