// Package usbserial drives a display over its USB CDC serial port.
// The boards expose the same frame protocol on USB as on BLE, so a
// cable-attached display plugs into the manager as just another
// connection.
package usbserial

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/protocol"
)

// Conn is a serial link to one display. It implements ble.Conn.
type Conn struct {
	path string
	port serial.Port

	mu     sync.Mutex
	closed bool
	broken bool
}

// Open opens the serial port at 115200 baud, 8N1.
func Open(portPath string) (*Conn, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portPath, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portPath, err)
	}

	log.Info().Str("port", portPath).Msg("Serial display attached")

	return &Conn{path: portPath, port: port}, nil
}

// Path returns the serial device path, used as the device ID.
func (c *Conn) Path() string {
	return c.path
}

func (c *Conn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ble.ErrClosed
	}
	if c.broken {
		return ble.ErrLinkLost
	}
	if err := ctx.Err(); err != nil {
		return ble.ErrTimeout
	}

	wire := f.Marshal()
	for written := 0; written < len(wire); {
		n, err := c.port.Write(wire[written:])
		if err != nil {
			c.broken = true
			return fmt.Errorf("%w: %v", ble.ErrLinkLost, err)
		}
		written += n
	}
	return nil
}

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.broken
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}
