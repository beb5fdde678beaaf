package manager

import "errors"

var (
	// ErrNotFound indicates the device ID is not in the registry.
	ErrNotFound = errors.New("device not found")

	// ErrDeviceNotConnected indicates the device is known but not in
	// the Connected state, so it cannot accept commands.
	ErrDeviceNotConnected = errors.New("device not connected")

	// ErrQueueFull indicates the device's pending-command queue is at
	// capacity. The caller should retry later.
	ErrQueueFull = errors.New("device queue full")

	// ErrClosed indicates the manager has been shut down.
	ErrClosed = errors.New("manager closed")
)
