// Package ble defines the capability interfaces the device manager
// needs from a Bluetooth Low Energy binding: discovering advertising
// displays and writing protocol frames to a connected one. Concrete
// implementations live in subpackages (tinyble) and in pkg/usbserial
// for cable-attached displays; the manager contains no platform logic.
package ble

import (
	"context"
	"time"

	"github.com/notifd/notifd/pkg/protocol"
)

// DeviceDescriptor identifies one advertising display seen during a scan.
type DeviceDescriptor struct {
	// ID is the platform-stable device identifier (BLE address).
	ID string
	// Name is the advertised local name.
	Name string
	// RSSI is the received signal strength in dBm at scan time.
	RSSI int16
}

// Conn is a live link to one display. Implementations must write the
// frames of a single command strictly in the order given and must not
// reorder or coalesce frames across commands.
type Conn interface {
	// WriteFrame transmits one frame, blocking until the platform
	// stack accepts it or ctx is done.
	WriteFrame(ctx context.Context, f protocol.Frame) error

	// IsConnected reports whether the link is still up.
	IsConnected() bool

	// Close tears down the link. Safe to call more than once.
	Close() error
}

// Scanner discovers advertising displays and opens connections to them.
type Scanner interface {
	// Scan reports devices whose advertised name starts with prefix.
	// The returned channel is closed when the timeout elapses or ctx
	// is cancelled; duplicate device IDs within one scan are
	// suppressed. An immediately-failed scan (adapter unavailable)
	// returns ErrScanFailed without retrying.
	Scan(ctx context.Context, prefix string, timeout time.Duration) (<-chan DeviceDescriptor, error)

	// Connect opens a link to a previously discovered device. The
	// attempt is bounded by timeout.
	Connect(ctx context.Context, desc DeviceDescriptor, timeout time.Duration) (Conn, error)
}
