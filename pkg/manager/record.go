package manager

import (
	"sync"
	"time"

	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/protocol"
)

// State is a device's position in the connection lifecycle.
type State int

const (
	StateDiscovered State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnecting
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of one device's record, safe to
// hand out without holding manager locks.
type Snapshot struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	State    string        `json:"state"`
	RSSI     int16         `json:"rssi"`
	LastSeen time.Time     `json:"last_seen"`
	Failures int           `json:"failures"`
	Backoff  time.Duration `json:"backoff,omitempty"`
}

// pending is one queued transfer: the full frame sequence of a single
// command, written atomically by the device's writer goroutine. done,
// when non-nil, receives the transmit result exactly once.
type pending struct {
	frames []protocol.Frame
	done   chan error
}

// entry is the manager's live record for one device. desc and the
// mutable fields are guarded by Manager.mu; conn is owned by the
// device's writer goroutine after start.
type entry struct {
	desc     ble.DeviceDescriptor
	state    State
	lastSeen time.Time
	failures int
	backoff  time.Duration

	conn  ble.Conn
	queue chan *pending

	// reconnectable is false for cable-attached displays, which are
	// evicted rather than retried when the link drops.
	reconnectable bool

	stop     chan struct{}
	stopOnce sync.Once
}

func (e *entry) signalStop() {
	e.stopOnce.Do(func() { close(e.stop) })
}
