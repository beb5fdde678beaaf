package db

import (
	"context"
	"fmt"
	"time"
)

// DeviceEvent is one persisted lifecycle transition.
type DeviceEvent struct {
	ID         int64
	DeviceID   string
	DeviceName string
	Type       string
	OccurredAt time.Time
}

// EventStore provides the append-only lifecycle event log.
type EventStore interface {
	Insert(ctx context.Context, e *DeviceEvent) error
	ListRecent(ctx context.Context, limit int) ([]*DeviceEvent, error)
}

// Events returns an EventStore for this database.
func (db *DB) Events() EventStore {
	return &eventStore{db: db}
}

type eventStore struct {
	db *DB
}

func (s *eventStore) Insert(ctx context.Context, e *DeviceEvent) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO device_events (device_id, device_name, type)
		VALUES (?, ?, ?)
	`, e.DeviceID, e.DeviceName, e.Type)
	if err != nil {
		return fmt.Errorf("failed to insert device event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (s *eventStore) ListRecent(ctx context.Context, limit int) ([]*DeviceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, device_name, type, occurred_at
		FROM device_events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*DeviceEvent
	for rows.Next() {
		e := &DeviceEvent{}
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.DeviceName, &e.Type, &occurredAt); err != nil {
			return nil, err
		}
		e.OccurredAt, _ = time.Parse(time.DateTime, occurredAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
