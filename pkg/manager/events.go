package manager

import "time"

// EventType identifies a lifecycle transition worth reporting.
type EventType string

const (
	EventConnected    EventType = "device_connected"
	EventDisconnected EventType = "device_disconnected"
	EventReconnecting EventType = "device_reconnecting"
	EventEvicted      EventType = "device_evicted"
)

// Event is a lifecycle notification delivered to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Device    Snapshot  `json:"device"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscribe returns a channel that receives lifecycle events. Slow
// subscribers drop events rather than stall the manager.
func (m *Manager) Subscribe() chan Event {
	ch := make(chan Event, 16)
	m.subscribersMu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.subscribersMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch chan Event) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// publish sends an event to all subscribers without blocking.
func (m *Manager) publish(t EventType, snap Snapshot) {
	evt := Event{Type: t, Device: snap, Timestamp: time.Now()}

	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
