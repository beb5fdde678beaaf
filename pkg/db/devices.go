package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrDeviceNotFound = errors.New("device not found")

// Device is the persisted record of a display the hub has seen.
type Device struct {
	ID        string
	ProfileID int64
	Name      string
	Transport string // "ble" or "serial"
	State     string
	LastSeen  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceStore provides device registry persistence.
type DeviceStore interface {
	Get(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context, profileID int64) ([]*Device, error)
	Upsert(ctx context.Context, d *Device) error
	SetState(ctx context.Context, id, state string) error
	Delete(ctx context.Context, id string) error
}

// Devices returns a DeviceStore for this database.
func (db *DB) Devices() DeviceStore {
	return &deviceStore{db: db}
}

type deviceStore struct {
	db *DB
}

func (s *deviceStore) Get(ctx context.Context, id string) (*Device, error) {
	d := &Device{}
	var lastSeen sql.NullString
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, name, transport, state, last_seen, created_at, updated_at
		FROM devices WHERE id = ?
	`, id).Scan(&d.ID, &d.ProfileID, &d.Name, &d.Transport, &d.State, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		if t, perr := time.Parse(time.DateTime, lastSeen.String); perr == nil {
			d.LastSeen = &t
		}
	}
	d.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	d.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return d, nil
}

func (s *deviceStore) List(ctx context.Context, profileID int64) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, name, transport, state, last_seen, created_at, updated_at
		FROM devices WHERE profile_id = ? ORDER BY id
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var devices []*Device
	for rows.Next() {
		d := &Device{}
		var lastSeen sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.ProfileID, &d.Name, &d.Transport, &d.State, &lastSeen, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			if t, perr := time.Parse(time.DateTime, lastSeen.String); perr == nil {
				d.LastSeen = &t
			}
		}
		d.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		d.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Upsert inserts the device or refreshes its name, transport, state
// and last-seen time.
func (s *deviceStore) Upsert(ctx context.Context, d *Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, profile_id, name, transport, state, last_seen)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			transport = excluded.transport,
			state = excluded.state,
			last_seen = excluded.last_seen,
			updated_at = datetime('now')
	`, d.ID, d.ProfileID, d.Name, d.Transport, d.State)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", d.ID, err)
	}
	return nil
}

func (s *deviceStore) SetState(ctx context.Context, id, state string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE devices SET state = ?, updated_at = datetime('now')
		WHERE id = ?
	`, state, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *deviceStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
