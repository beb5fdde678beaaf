package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notifd/notifd/pkg/api"
	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/ble/tinyble"
	"github.com/notifd/notifd/pkg/db"
	"github.com/notifd/notifd/pkg/manager"
	"github.com/notifd/notifd/pkg/protocol/schema"
	"github.com/notifd/notifd/pkg/usbserial"

	_ "github.com/notifd/notifd/docs"
)

// @title           notifd API
// @version         1.0
// @description     REST API for driving BLE and serial notification displays

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/notifd/notifd.db)")
	serialPort := flag.String("serial", "", "Path to a USB serial display (overrides the configured port)")
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

	log.Info().
		Str("profile", cfg.Profile.Name).
		Str("api_address", cfg.APIAddress()).
		Msg("Configuration loaded")

	// Try to bring up the Bluetooth adapter; fall back to NullScanner
	var scanner ble.Scanner
	scanner, err = tinyble.NewScanner()
	if err != nil {
		log.Warn().Err(err).Msg("Bluetooth adapter unavailable, using null scanner")
		scanner = ble.NewNullScanner()
	}

	mgr := manager.New(scanner, managerConfig(cfg.BLE))
	defer mgr.Close()

	// Persist lifecycle events and device state changes
	events := mgr.Subscribe()
	go persistEvents(ctx, database, cfg.Profile.ID, events)

	// Attach a cable-connected display if one is configured
	port := cfg.SerialPort()
	if *serialPort != "" {
		port = *serialPort
	}
	if port != "" {
		conn, err := usbserial.Open(port)
		if err != nil {
			log.Warn().Err(err).Str("port", port).Msg("Serial display unavailable")
		} else if err := mgr.Attach(conn.Path(), "notif_atoms3_usb", conn); err != nil {
			log.Warn().Err(err).Str("port", port).Msg("Failed to attach serial display")
		}
	}

	// Initial discovery pass in the background
	go func() {
		report, err := mgr.ScanAndConnectAll(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Initial discovery pass failed")
			return
		}
		log.Info().Int("connected", len(report.Connected)).Int("failed", len(report.Failed)).Msg("Initial discovery pass complete")
	}()

	validator := schema.NewValidator()

	// Create and start API router
	router := api.NewRouter(mgr, validator)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")
		mgr.Close()
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
		os.Exit(0)
	}()

	// Start server
	addr := cfg.APIAddress()
	log.Info().Str("address", addr).Msg("Starting API server")

	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// managerConfig maps the persisted tuning to a manager.Config. Zero
// values fall through to the manager's built-in defaults.
func managerConfig(c *db.BLEConfig) manager.Config {
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

// persistEvents mirrors manager lifecycle events into the device
// registry and event log until the subscription closes.
func persistEvents(ctx context.Context, database *db.DB, profileID int64, events chan manager.Event) {
	for evt := range events {
		transport := "ble"
		if strings.HasPrefix(evt.Device.ID, "/") {
			transport = "serial"
		}

		record := &db.Device{
			ID:        evt.Device.ID,
			ProfileID: profileID,
			Name:      evt.Device.Name,
			Transport: transport,
			State:     evt.Device.State,
		}
		if err := database.Devices().Upsert(ctx, record); err != nil {
			log.Warn().Err(err).Str("id", evt.Device.ID).Msg("Failed to persist device state")
		}

		entry := &db.DeviceEvent{
			DeviceID:   evt.Device.ID,
			DeviceName: evt.Device.Name,
			Type:       string(evt.Type),
		}
		if err := database.Events().Insert(ctx, entry); err != nil {
			log.Warn().Err(err).Str("id", evt.Device.ID).Msg("Failed to persist device event")
		}
	}
}
