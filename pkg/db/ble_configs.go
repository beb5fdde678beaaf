package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrBLEConfigNotFound = errors.New("ble config not found")

// BLEConfig holds the per-profile device manager tuning. Durations are
// stored in milliseconds; zero means use the built-in default.
type BLEConfig struct {
	ID                    int64
	ProfileID             int64
	NamePrefix            string
	ScanTimeout           time.Duration
	ConnectTimeout        time.Duration
	MaxConcurrentConnects int
	QueueCapacity         int
	BackoffBase           time.Duration
	BackoffCap            time.Duration
	RetryWindow           time.Duration
	InterFrameDelay       time.Duration
	CreatedAt             time.Time
}

// BLEConfigStore provides BLE config CRUD operations.
type BLEConfigStore interface {
	Get(ctx context.Context, profileID int64) (*BLEConfig, error)
	Create(ctx context.Context, c *BLEConfig) error
	Update(ctx context.Context, c *BLEConfig) error
}

// BLEConfigs returns a BLEConfigStore for this database.
func (db *DB) BLEConfigs() BLEConfigStore {
	return &bleConfigStore{db: db}
}

type bleConfigStore struct {
	db *DB
}

func (s *bleConfigStore) Get(ctx context.Context, profileID int64) (*BLEConfig, error) {
	c := &BLEConfig{}
	var scanMS, connectMS, baseMS, capMS, windowMS, delayMS int64
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, name_prefix, scan_timeout_ms, connect_timeout_ms,
		       max_concurrent_connects, queue_capacity, backoff_base_ms,
		       backoff_cap_ms, retry_window_ms, inter_frame_delay_ms, created_at
		FROM ble_configs WHERE profile_id = ?
	`, profileID).Scan(
		&c.ID, &c.ProfileID, &c.NamePrefix, &scanMS, &connectMS,
		&c.MaxConcurrentConnects, &c.QueueCapacity, &baseMS,
		&capMS, &windowMS, &delayMS, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBLEConfigNotFound
	}
	if err != nil {
		return nil, err
	}

	c.ScanTimeout = time.Duration(scanMS) * time.Millisecond
	c.ConnectTimeout = time.Duration(connectMS) * time.Millisecond
	c.BackoffBase = time.Duration(baseMS) * time.Millisecond
	c.BackoffCap = time.Duration(capMS) * time.Millisecond
	c.RetryWindow = time.Duration(windowMS) * time.Millisecond
	c.InterFrameDelay = time.Duration(delayMS) * time.Millisecond
	c.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	return c, nil
}

func (s *bleConfigStore) Create(ctx context.Context, c *BLEConfig) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ble_configs (
			profile_id, name_prefix, scan_timeout_ms, connect_timeout_ms,
			max_concurrent_connects, queue_capacity, backoff_base_ms,
			backoff_cap_ms, retry_window_ms, inter_frame_delay_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ProfileID, c.NamePrefix,
		c.ScanTimeout.Milliseconds(), c.ConnectTimeout.Milliseconds(),
		c.MaxConcurrentConnects, c.QueueCapacity,
		c.BackoffBase.Milliseconds(), c.BackoffCap.Milliseconds(),
		c.RetryWindow.Milliseconds(), c.InterFrameDelay.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to create BLE config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (s *bleConfigStore) Update(ctx context.Context, c *BLEConfig) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ble_configs SET
			name_prefix = ?, scan_timeout_ms = ?, connect_timeout_ms = ?,
			max_concurrent_connects = ?, queue_capacity = ?, backoff_base_ms = ?,
			backoff_cap_ms = ?, retry_window_ms = ?, inter_frame_delay_ms = ?
		WHERE profile_id = ?
	`,
		c.NamePrefix,
		c.ScanTimeout.Milliseconds(), c.ConnectTimeout.Milliseconds(),
		c.MaxConcurrentConnects, c.QueueCapacity,
		c.BackoffBase.Milliseconds(), c.BackoffCap.Milliseconds(),
		c.RetryWindow.Milliseconds(), c.InterFrameDelay.Milliseconds(),
		c.ProfileID,
	)
	return err
}
