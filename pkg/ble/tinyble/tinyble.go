// Package tinyble implements the ble capability interfaces on top of
// tinygo.org/x/bluetooth, which fronts the native stack on each
// supported OS (BlueZ, CoreBluetooth, WinRT).
package tinyble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"tinygo.org/x/bluetooth"

	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/protocol"
)

// GATT contract with the notif_atoms3 firmware.
const (
	serviceUUID = "12345678-1234-5678-1234-56789abcdef0"
	commandUUID = "12345678-1234-5678-1234-56789abcdef1"

	// maxWrite is the largest single GATT write the firmware accepts.
	maxWrite = 512
)

// scanStartGrace is how long Scan waits for the adapter to report a
// start failure before handing the result stream to the caller.
const scanStartGrace = 100 * time.Millisecond

// Scanner discovers and connects to displays through the default
// Bluetooth adapter.
type Scanner struct {
	adapter *bluetooth.Adapter

	// addresses remembers scan results so Connect can resolve a
	// device ID back to a platform address across reconnects.
	addresses   map[string]bluetooth.Address
	addressesMu sync.Mutex

	scanMu sync.Mutex // one active scan per adapter
}

// NewScanner enables the default Bluetooth adapter and returns a
// Scanner backed by it.
func NewScanner() (*Scanner, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %v", ble.ErrScanFailed, err)
	}
	return &Scanner{
		adapter:   adapter,
		addresses: make(map[string]bluetooth.Address),
	}, nil
}

// Scan streams advertising devices whose local name starts with prefix.
// The channel closes when timeout elapses or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, prefix string, timeout time.Duration) (<-chan ble.DeviceDescriptor, error) {
	s.scanMu.Lock()

	out := make(chan ble.DeviceDescriptor, 16)
	seen := make(map[string]struct{})
	var seenMu sync.Mutex

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			if !strings.HasPrefix(name, prefix) {
				return
			}
			id := result.Address.String()

			seenMu.Lock()
			if _, dup := seen[id]; dup {
				seenMu.Unlock()
				return
			}
			seen[id] = struct{}{}
			seenMu.Unlock()

			s.addressesMu.Lock()
			s.addresses[id] = result.Address
			s.addressesMu.Unlock()

			log.Debug().Str("id", id).Str("name", name).Int16("rssi", result.RSSI).Msg("Device discovered")

			select {
			case out <- ble.DeviceDescriptor{ID: id, Name: name, RSSI: result.RSSI}:
			default:
			}
		})
	}()

	// An adapter that cannot start scanning fails almost at once.
	// Report that as a scan error instead of an empty pass.
	select {
	case err := <-scanErr:
		s.scanMu.Unlock()
		close(out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ble.ErrScanFailed, err)
		}
		return out, nil
	case <-time.After(scanStartGrace):
	}

	go func() {
		defer s.scanMu.Unlock()
		defer close(out)

		select {
		case <-time.After(timeout):
		case <-ctx.Done():
		case err := <-scanErr:
			if err != nil {
				log.Warn().Err(err).Msg("BLE scan ended with error")
			}
			return
		}
		if err := s.adapter.StopScan(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop BLE scan")
		}
		<-scanErr
	}()

	return out, nil
}

// Connect opens a GATT connection and resolves the firmware's command
// characteristic.
func (s *Scanner) Connect(ctx context.Context, desc ble.DeviceDescriptor, timeout time.Duration) (ble.Conn, error) {
	s.addressesMu.Lock()
	addr, ok := s.addresses[desc.ID]
	s.addressesMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device %s has not been discovered by this adapter", desc.ID)
	}

	device, err := s.adapter.Connect(addr, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", desc.ID, err)
	}

	svcUUID, _ := bluetooth.ParseUUID(serviceUUID)
	chrUUID, _ := bluetooth.ParseUUID(commandUUID)

	services, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, fmt.Errorf("discover display service on %s: %w", desc.ID, err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{chrUUID})
	if err != nil || len(chars) == 0 {
		_ = device.Disconnect()
		return nil, fmt.Errorf("discover command characteristic on %s: %w", desc.ID, err)
	}

	log.Info().Str("id", desc.ID).Str("name", desc.Name).Msg("BLE connection established")

	return &conn{
		id:      desc.ID,
		device:  device,
		command: chars[0],
	}, nil
}

// conn is a live GATT link to one display.
type conn struct {
	id      string
	device  bluetooth.Device
	command bluetooth.DeviceCharacteristic

	mu     sync.Mutex
	closed bool
	broken bool
}

func (c *conn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ble.ErrClosed
	}
	if c.broken {
		return ble.ErrLinkLost
	}

	wire := f.Marshal()
	for off := 0; off < len(wire); off += maxWrite {
		if err := ctx.Err(); err != nil {
			return ble.ErrTimeout
		}
		end := off + maxWrite
		if end > len(wire) {
			end = len(wire)
		}
		if _, err := c.command.WriteWithoutResponse(wire[off:end]); err != nil {
			c.broken = true
			return fmt.Errorf("%w: %v", ble.ErrLinkLost, err)
		}
	}
	return nil
}

func (c *conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.broken
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.device.Disconnect(); err != nil {
		log.Warn().Err(err).Str("id", c.id).Msg("Failed to disconnect BLE device")
		return err
	}
	return nil
}
