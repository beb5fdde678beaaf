package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "notifd.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return database
}

func TestBootstrapCreatesDefaults(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveConfig: %v", err)
	}
	if cfg.Profile.Name != "default" {
		t.Errorf("profile name = %q, want default", cfg.Profile.Name)
	}
	if cfg.APIAddress() != "0.0.0.0:8080" {
		t.Errorf("api address = %q", cfg.APIAddress())
	}
	if cfg.BLE == nil {
		t.Fatal("bootstrap did not create a BLE config")
	}
	if cfg.BLE.NamePrefix != "notif_atoms3" {
		t.Errorf("name prefix = %q", cfg.BLE.NamePrefix)
	}

	// Bootstrap must be idempotent.
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
}

func TestBLEConfigRoundTrip(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	profile, err := database.Profiles().GetActive(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := database.BLEConfigs().Get(ctx, profile.ID)
	if err != nil {
		t.Fatal(err)
	}

	cfg.NamePrefix = "notif_custom"
	cfg.ScanTimeout = 15 * time.Second
	cfg.RetryWindow = 2 * time.Minute
	cfg.QueueCapacity = 64
	if err := database.BLEConfigs().Update(ctx, cfg); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := database.BLEConfigs().Get(ctx, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.NamePrefix != "notif_custom" || got.ScanTimeout != 15*time.Second ||
		got.RetryWindow != 2*time.Minute || got.QueueCapacity != 64 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestDeviceStore(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	profile, err := database.Profiles().GetActive(ctx)
	if err != nil {
		t.Fatal(err)
	}

	d := &Device{ID: "aa:bb:cc", ProfileID: profile.ID, Name: "notif_atoms3_1", Transport: "ble", State: "connected"}
	if err := database.Devices().Upsert(ctx, d); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Upsert again with a new state; no duplicate row.
	d.State = "reconnecting"
	if err := database.Devices().Upsert(ctx, d); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	devices, err := database.Devices().List(ctx, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	if devices[0].State != "reconnecting" {
		t.Errorf("state = %q, want reconnecting", devices[0].State)
	}
	if devices[0].LastSeen == nil {
		t.Error("last_seen not recorded")
	}

	if err := database.Devices().Delete(ctx, "aa:bb:cc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := database.Devices().Get(ctx, "aa:bb:cc"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestEventLog(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	for _, typ := range []string{"device_connected", "device_disconnected", "device_evicted"} {
		if err := database.Events().Insert(ctx, &DeviceEvent{DeviceID: "aa:bb:cc", DeviceName: "notif_atoms3_1", Type: typ}); err != nil {
			t.Fatalf("insert %s: %v", typ, err)
		}
	}

	events, err := database.Events().ListRecent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Most recent first.
	if events[0].Type != "device_evicted" {
		t.Errorf("newest event = %q, want device_evicted", events[0].Type)
	}
}
