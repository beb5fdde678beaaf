// Package manager maintains the registry of notification displays and
// mediates all traffic to them. Each connected device gets a bounded
// command queue and a single writer goroutine, so frames of one command
// are never interleaved with another's. Dropped links are retried with
// jittered exponential backoff until a retry window expires, after
// which the device is evicted.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/protocol"
)

// Manager owns the device registry. All methods are safe for
// concurrent use.
type Manager struct {
	cfg     Config
	scanner ble.Scanner

	mu      sync.RWMutex
	devices map[string]*entry
	closed  bool

	subscribers   []chan Event
	subscribersMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Manager that discovers devices through scanner.
func New(scanner ble.Scanner, cfg Config) *Manager {
	return &Manager{
		cfg:     cfg.withDefaults(),
		scanner: scanner,
		devices: make(map[string]*entry),
		done:    make(chan struct{}),
	}
}

// ConnectReport summarizes one discovery pass.
type ConnectReport struct {
	Connected []string          `json:"connected"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// ScanAndConnectAll runs one discovery pass and connects to every
// matching device not already in the registry. Connect attempts run
// concurrently, bounded by MaxConcurrentConnects. Failures are
// reported per device; the pass itself only fails if the scan cannot
// start.
func (m *Manager) ScanAndConnectAll(ctx context.Context) (*ConnectReport, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	found, err := m.scanner.Scan(ctx, m.cfg.NamePrefix, m.cfg.ScanTimeout)
	if err != nil {
		return nil, fmt.Errorf("discovery scan: %w", err)
	}

	report := &ConnectReport{Failed: make(map[string]string)}
	var reportMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.cfg.MaxConcurrentConnects)

	for desc := range found {
		m.mu.Lock()
		if existing, ok := m.devices[desc.ID]; ok {
			existing.lastSeen = time.Now()
			m.mu.Unlock()
			continue
		}
		e := &entry{
			desc:          desc,
			state:         StateDiscovered,
			lastSeen:      time.Now(),
			queue:         make(chan *pending, m.cfg.QueueCapacity),
			stop:          make(chan struct{}),
			reconnectable: true,
		}
		m.devices[desc.ID] = e
		m.mu.Unlock()

		desc := desc
		g.Go(func() error {
			m.mu.Lock()
			e.state = StateConnecting
			m.mu.Unlock()

			conn, err := m.scanner.Connect(ctx, desc, m.cfg.ConnectTimeout)
			if err != nil {
				log.Warn().Err(err).Str("id", desc.ID).Str("name", desc.Name).Msg("Initial connect failed")
				m.mu.Lock()
				delete(m.devices, desc.ID)
				m.mu.Unlock()

				reportMu.Lock()
				report.Failed[desc.ID] = err.Error()
				reportMu.Unlock()
				return nil
			}

			m.start(e, conn)

			reportMu.Lock()
			report.Connected = append(report.Connected, desc.ID)
			reportMu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	sort.Strings(report.Connected)
	return report, nil
}

// Attach registers an already-open connection, such as a USB serial
// display, under the given ID. Attached devices are not reconnectable:
// a dropped link evicts them.
func (m *Manager) Attach(id, name string, conn ble.Conn) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.devices[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("device %s already registered", id)
	}
	e := &entry{
		desc:     ble.DeviceDescriptor{ID: id, Name: name},
		state:    StateConnecting,
		lastSeen: time.Now(),
		queue:    make(chan *pending, m.cfg.QueueCapacity),
		stop:     make(chan struct{}),
	}
	m.devices[id] = e
	m.mu.Unlock()

	m.start(e, conn)
	return nil
}

// start transitions an entry to Connected and launches its writer.
func (m *Manager) start(e *entry, conn ble.Conn) {
	m.mu.Lock()
	e.conn = conn
	e.state = StateConnected
	e.lastSeen = time.Now()
	e.failures = 0
	e.backoff = 0
	snap := e.snapshotLocked()
	m.mu.Unlock()

	log.Info().Str("id", e.desc.ID).Str("name", e.desc.Name).Msg("Device connected")
	m.publish(EventConnected, snap)

	m.wg.Add(1)
	go m.runDevice(e)
}

// SendCommand encodes cmd and enqueues its frames for the device.
// Acceptance means the command is queued, not that it has reached the
// display. Devices outside the Connected state reject immediately.
func (m *Manager) SendCommand(ctx context.Context, id string, cmd protocol.Command) error {
	frames, err := protocol.Encode(cmd, m.cfg.MaxFramePayload)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	return m.enqueue(id, &pending{frames: frames})
}

// Broadcast sends cmd to every connected device and waits for each
// delivery to finish. The result map has one entry per device: nil on
// success, or the transmit error. One device's failure never blocks
// or fails the others.
func (m *Manager) Broadcast(ctx context.Context, cmd protocol.Command) (map[string]error, error) {
	frames, err := protocol.Encode(cmd, m.cfg.MaxFramePayload)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.devices))
	for id, e := range m.devices {
		if e.state == StateConnected {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	results := make(map[string]error, len(ids))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := m.deliver(ctx, id, frames)

			resultsMu.Lock()
			results[id] = err
			resultsMu.Unlock()
		}(id)
	}
	wg.Wait()
	return results, nil
}

// enqueue places a transfer on the device's queue without blocking.
// The send happens under the same read lock that validated the state:
// the writer's final drain runs under the write lock after the state
// has left Connected, so no transfer can land in a queue nothing will
// ever read.
func (m *Manager) enqueue(id string, p *pending) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.state != StateConnected {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, id)
	}

	select {
	case e.queue <- p:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, id)
	}
}

// deliver enqueues a transfer and waits for its transmit result.
func (m *Manager) deliver(ctx context.Context, id string, frames []protocol.Frame) error {
	p := &pending{frames: frames, done: make(chan error, 1)}
	if err := m.enqueue(id, p); err != nil {
		return err
	}
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of every device in the registry, ordered
// by ID.
func (m *Manager) Status() []Snapshot {
	m.mu.RLock()
	snaps := make([]Snapshot, 0, len(m.devices))
	for _, e := range m.devices {
		snaps = append(snaps, e.snapshotLocked())
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Device returns the snapshot for a single device.
func (m *Manager) Device(id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.devices[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.snapshotLocked(), nil
}

// Unpair disconnects a device and removes it from the registry. Any
// queued commands fail with ErrDeviceNotConnected.
func (m *Manager) Unpair(id string) error {
	m.mu.Lock()
	e, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.devices, id)
	m.mu.Unlock()

	e.signalStop()
	log.Info().Str("id", id).Msg("Device unpaired")
	return nil
}

// Close shuts down the manager: all writer goroutines stop, all
// connections close, and all subscriber channels close.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()

	m.subscribersMu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.subscribersMu.Unlock()

	log.Info().Msg("Device manager closed")
}

// snapshotLocked copies the entry's record. Callers hold Manager.mu.
func (e *entry) snapshotLocked() Snapshot {
	return Snapshot{
		ID:       e.desc.ID,
		Name:     e.desc.Name,
		State:    e.state.String(),
		RSSI:     e.desc.RSSI,
		LastSeen: e.lastSeen,
		Failures: e.failures,
		Backoff:  e.backoff,
	}
}
