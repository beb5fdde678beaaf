package ble

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLinkLost indicates the peer dropped the connection.
	ErrLinkLost = errors.New("link lost")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrScanFailed indicates discovery could not run at all, e.g.
	// the Bluetooth adapter is disabled or missing.
	ErrScanFailed = errors.New("scan failed")

	// ErrClosed indicates use of a connection after Close.
	ErrClosed = errors.New("connection closed")
)

// BusyError is returned when the platform stack cannot accept a write
// right now but expects to recover.
type BusyError struct {
	RetryAfter time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("link busy, retry after %s", e.RetryAfter)
}
