package ble

import (
	"context"
	"time"
)

// NullScanner is a no-op scanner used when no Bluetooth adapter is
// available. It lets the API and MCP servers run in limited mode:
// scans fail cleanly and nothing is ever discovered.
type NullScanner struct{}

// NewNullScanner creates a new NullScanner.
func NewNullScanner() *NullScanner {
	return &NullScanner{}
}

func (s *NullScanner) Scan(ctx context.Context, prefix string, timeout time.Duration) (<-chan DeviceDescriptor, error) {
	return nil, ErrScanFailed
}

func (s *NullScanner) Connect(ctx context.Context, desc DeviceDescriptor, timeout time.Duration) (Conn, error) {
	return nil, ErrScanFailed
}
