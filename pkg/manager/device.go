package manager

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// writeTimeout bounds one frame write. A stack that stalls longer than
// this is treated as a dropped link.
const writeTimeout = 10 * time.Second

// runDevice is the writer goroutine for one device. It is the only
// goroutine that touches e.conn after start, so commands drain in FIFO
// order and a multi-frame transfer is never interleaved with another.
func (m *Manager) runDevice(e *entry) {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			m.teardown(e, ErrClosed)
			return
		case <-e.stop:
			m.teardown(e, ErrDeviceNotConnected)
			return
		case p := <-e.queue:
			err := m.transmit(e, p)
			if p.done != nil {
				p.done <- err
			}
			if err == nil {
				continue
			}

			log.Warn().Err(err).Str("id", e.desc.ID).Msg("Transmit failed, link considered lost")
			if !m.recover(e) {
				return
			}
		}
	}
}

// transmit writes every frame of one transfer, pacing chunked writes
// by InterFrameDelay.
func (m *Manager) transmit(e *entry, p *pending) error {
	for i, f := range p.frames {
		if i > 0 && m.cfg.InterFrameDelay > 0 {
			select {
			case <-time.After(m.cfg.InterFrameDelay):
			case <-m.done:
				return ErrClosed
			case <-e.stop:
				return ErrDeviceNotConnected
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := e.conn.WriteFrame(ctx, f)
		cancel()
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	e.lastSeen = time.Now()
	m.mu.Unlock()
	return nil
}

// recover handles a dropped link. It retries the connection with
// jittered exponential backoff until RetryWindow elapses, then evicts
// the device. Returns true if the device is connected again and the
// writer loop should continue.
func (m *Manager) recover(e *entry) bool {
	_ = e.conn.Close()

	m.mu.Lock()
	e.state = StateDisconnected
	e.failures++
	snap := e.snapshotLocked()
	m.mu.Unlock()

	m.publish(EventDisconnected, snap)

	if !e.reconnectable {
		m.evict(e)
		return false
	}

	deadline := time.Now().Add(m.cfg.RetryWindow)
	backoff := m.cfg.BackoffBase

	for {
		m.mu.Lock()
		e.state = StateReconnecting
		e.backoff = backoff
		snap = e.snapshotLocked()
		m.mu.Unlock()
		m.publish(EventReconnecting, snap)

		select {
		case <-time.After(jitter(backoff)):
		case <-m.done:
			m.teardown(e, ErrClosed)
			return false
		case <-e.stop:
			m.teardown(e, ErrDeviceNotConnected)
			return false
		}

		if time.Now().After(deadline) {
			m.evict(e)
			return false
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
		conn, err := m.scanner.Connect(ctx, e.desc, m.cfg.ConnectTimeout)
		cancel()
		if err == nil {
			m.mu.Lock()
			e.conn = conn
			e.state = StateConnected
			e.lastSeen = time.Now()
			e.failures = 0
			e.backoff = 0
			snap = e.snapshotLocked()
			m.mu.Unlock()

			log.Info().Str("id", e.desc.ID).Msg("Device reconnected")
			m.publish(EventConnected, snap)
			return true
		}

		log.Debug().Err(err).Str("id", e.desc.ID).Dur("backoff", backoff).Msg("Reconnect attempt failed")

		m.mu.Lock()
		e.failures++
		m.mu.Unlock()

		backoff *= 2
		if backoff > m.cfg.BackoffCap {
			backoff = m.cfg.BackoffCap
		}
	}
}

// evict removes a device that exhausted its retry window or cannot
// be retried. Queued transfers fail with ErrDeviceNotConnected.
func (m *Manager) evict(e *entry) {
	m.mu.Lock()
	e.state = StateEvicted
	if current, ok := m.devices[e.desc.ID]; ok && current == e {
		delete(m.devices, e.desc.ID)
	}
	e.drain(ErrDeviceNotConnected)
	snap := e.snapshotLocked()
	m.mu.Unlock()

	log.Warn().Str("id", e.desc.ID).Msg("Device evicted")
	m.publish(EventEvicted, snap)
}

// teardown fails queued transfers and closes the connection when the
// writer exits for a reason other than eviction. The state change and
// drain share one critical section with enqueue's state check, so a
// command is either rejected or answered, never silently stranded.
func (m *Manager) teardown(e *entry, reason error) {
	m.mu.Lock()
	e.state = StateDisconnected
	e.drain(reason)
	m.mu.Unlock()

	if e.conn != nil {
		_ = e.conn.Close()
	}
}

// drain answers every queued transfer with err. Callers hold
// Manager.mu so no new transfer can be enqueued behind the drain.
func (e *entry) drain(err error) {
	for {
		select {
		case p := <-e.queue:
			if p.done != nil {
				p.done <- err
			}
		default:
			return
		}
	}
}

// jitter spreads a backoff wait over [d/2, d] so a fleet of devices
// dropped at once does not retry in lockstep.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
