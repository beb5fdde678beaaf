package db

import (
	"context"
	"fmt"
)

// Bootstrap initializes the database with default data if it's empty.
// This is called after migrations and handles first-run setup.
func (db *DB) Bootstrap(ctx context.Context) error {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check profiles: %w", err)
	}

	if count > 0 {
		return nil // Already bootstrapped
	}

	// First run: default profile with default server and BLE settings.
	result, err := db.ExecContext(ctx, `
		INSERT INTO profiles (name, is_active)
		VALUES ('default', 1)
	`)
	if err != nil {
		return fmt.Errorf("failed to create default profile: %w", err)
	}

	profileID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get profile ID: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO api_servers (profile_id, host, port)
		VALUES (?, '0.0.0.0', 8080)
	`, profileID)
	if err != nil {
		return fmt.Errorf("failed to create default API server: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO ble_configs (profile_id)
		VALUES (?)
	`, profileID)
	if err != nil {
		return fmt.Errorf("failed to create default BLE config: %w", err)
	}

	return nil
}

// NeedsBootstrap returns true if the database needs initial setup.
func (db *DB) NeedsBootstrap(ctx context.Context) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
