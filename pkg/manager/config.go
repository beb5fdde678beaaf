package manager

import (
	"time"

	"github.com/notifd/notifd/pkg/protocol"
)

// Config tunes discovery, connection, queueing and reconnection.
// Zero values fall back to the defaults below.
type Config struct {
	// NamePrefix filters scan results to compatible displays.
	NamePrefix string

	// ScanTimeout bounds one discovery pass.
	ScanTimeout time.Duration

	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration

	// MaxConcurrentConnects caps simultaneous connect attempts so a
	// scan burst cannot overload the platform BLE stack.
	MaxConcurrentConnects int

	// QueueCapacity bounds each device's pending-command queue.
	// Enqueuing beyond it fails fast with ErrQueueFull.
	QueueCapacity int

	// MaxFramePayload is the chunking threshold handed to the codec.
	MaxFramePayload int

	// BackoffBase and BackoffCap bound the exponential reconnection
	// backoff. Each wait is jittered.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// RetryWindow is how long a device may stay disconnected before
	// it is evicted from the registry.
	RetryWindow time.Duration

	// InterFrameDelay paces the writes of a chunked transfer. The
	// firmware has no flow-control acknowledgement, so pacing is the
	// only throttle; zero disables it.
	InterFrameDelay time.Duration
}

// Defaults matching the firmware deployment.
const (
	DefaultNamePrefix            = "notif_atoms3"
	DefaultScanTimeout           = 10 * time.Second
	DefaultConnectTimeout        = 30 * time.Second
	DefaultMaxConcurrentConnects = 4
	DefaultQueueCapacity         = 32
	DefaultBackoffBase           = 1 * time.Second
	DefaultBackoffCap            = 30 * time.Second
	DefaultRetryWindow           = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.NamePrefix == "" {
		c.NamePrefix = DefaultNamePrefix
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxConcurrentConnects <= 0 {
		c.MaxConcurrentConnects = DefaultMaxConcurrentConnects
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.MaxFramePayload <= 0 {
		c.MaxFramePayload = protocol.DefaultMaxFramePayload
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap < c.BackoffBase {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = DefaultRetryWindow
	}
	return c
}
