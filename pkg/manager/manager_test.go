package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/protocol"
)

// fakeConn records written frames and can be told to fail.
type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.Frame
	fail   error
	closed bool

	// writeDelay simulates a slow link.
	writeDelay time.Duration
}

func (c *fakeConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	if c.closed {
		return ble.ErrClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.fail == nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) breakLink() {
	c.mu.Lock()
	c.fail = ble.ErrLinkLost
	c.mu.Unlock()
}

func (c *fakeConn) written() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// fakeScanner advertises a fixed set of devices and hands out conns
// from a factory, so tests control every reconnect attempt.
type fakeScanner struct {
	mu         sync.Mutex
	advertised []ble.DeviceDescriptor
	conns      map[string]func() (ble.Conn, error)
	connects   map[string]int
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{
		conns:    make(map[string]func() (ble.Conn, error)),
		connects: make(map[string]int),
	}
}

func (s *fakeScanner) advertise(id, name string, factory func() (ble.Conn, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertised = append(s.advertised, ble.DeviceDescriptor{ID: id, Name: name, RSSI: -60})
	s.conns[id] = factory
}

func (s *fakeScanner) Scan(ctx context.Context, prefix string, timeout time.Duration) (<-chan ble.DeviceDescriptor, error) {
	s.mu.Lock()
	devices := make([]ble.DeviceDescriptor, len(s.advertised))
	copy(devices, s.advertised)
	s.mu.Unlock()

	out := make(chan ble.DeviceDescriptor, len(devices))
	for _, d := range devices {
		out <- d
	}
	close(out)
	return out, nil
}

func (s *fakeScanner) Connect(ctx context.Context, desc ble.DeviceDescriptor, timeout time.Duration) (ble.Conn, error) {
	s.mu.Lock()
	factory, ok := s.conns[desc.ID]
	s.connects[desc.ID]++
	s.mu.Unlock()
	if !ok {
		return nil, ble.ErrScanFailed
	}
	return factory()
}

func (s *fakeScanner) connectCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects[id]
}

func steadyConn(c *fakeConn) func() (ble.Conn, error) {
	return func() (ble.Conn, error) { return c, nil }
}

// testConfig keeps timing-sensitive tests fast.
func testConfig() Config {
	return Config{
		NamePrefix:      "notif_test",
		ScanTimeout:     100 * time.Millisecond,
		ConnectTimeout:  time.Second,
		QueueCapacity:   4,
		MaxFramePayload: 64,
		BackoffBase:     5 * time.Millisecond,
		BackoffCap:      20 * time.Millisecond,
		RetryWindow:     200 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScanAndConnectAll(t *testing.T) {
	scanner := newFakeScanner()
	connA := &fakeConn{}
	connB := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(connA))
	scanner.advertise("aa:02", "notif_test_b", steadyConn(connB))

	m := New(scanner, testConfig())
	defer m.Close()

	report, err := m.ScanAndConnectAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAndConnectAll failed: %v", err)
	}
	if len(report.Connected) != 2 {
		t.Fatalf("expected 2 connected devices, got %v", report.Connected)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", report.Failed)
	}

	status := m.Status()
	if len(status) != 2 {
		t.Fatalf("expected 2 devices in registry, got %d", len(status))
	}
	for _, snap := range status {
		if snap.State != StateConnected.String() {
			t.Errorf("device %s in state %s, want connected", snap.ID, snap.State)
		}
	}
}

func TestScanAndConnectAll_PartialFailure(t *testing.T) {
	scanner := newFakeScanner()
	connA := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(connA))
	scanner.advertise("aa:02", "notif_test_b", func() (ble.Conn, error) {
		return nil, errors.New("pairing rejected")
	})

	m := New(scanner, testConfig())
	defer m.Close()

	report, err := m.ScanAndConnectAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAndConnectAll failed: %v", err)
	}
	if len(report.Connected) != 1 || report.Connected[0] != "aa:01" {
		t.Fatalf("expected aa:01 connected, got %v", report.Connected)
	}
	if _, ok := report.Failed["aa:02"]; !ok {
		t.Fatalf("expected aa:02 in failures, got %v", report.Failed)
	}

	// Failed devices must not linger in the registry.
	if _, err := m.Device("aa:02"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for failed device, got %v", err)
	}
}

func TestSendCommand_DeliversInOrder(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(conn))

	m := New(scanner, testConfig())
	defer m.Close()
	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		cmd := protocol.Text{X: uint8(i), Y: 0, Size: protocol.SizeSmall, Content: fmt.Sprintf("msg %d", i)}
		if err := m.SendCommand(context.Background(), "aa:01", cmd); err != nil {
			t.Fatalf("SendCommand %d failed: %v", i, err)
		}
	}

	waitFor(t, time.Second, func() bool { return len(conn.written()) == 5 })

	frames := conn.written()
	for i, f := range frames {
		if f.Payload[0] != byte(i) {
			t.Errorf("frame %d carries x=%d, want %d: FIFO order violated", i, f.Payload[0], i)
		}
	}
}

func TestSendCommand_ChunkedTransferNotInterleaved(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(conn))

	cfg := testConfig()
	cfg.MaxFramePayload = 16
	m := New(scanner, cfg)
	defer m.Close()
	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	big := protocol.Image{Pixels: make([]byte, 100)} // 7 chunks at 16 bytes
	small := protocol.Clear{Color: protocol.Black}

	if err := m.SendCommand(context.Background(), "aa:01", big); err != nil {
		t.Fatal(err)
	}
	if err := m.SendCommand(context.Background(), "aa:01", small); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return len(conn.written()) == 8 })

	frames := conn.written()
	for i := 0; i < 7; i++ {
		if !frames[i].Chunked() || frames[i].Seq != uint16(i) {
			t.Fatalf("frame %d: want chunk seq %d, got chunked=%v seq=%d", i, i, frames[i].Chunked(), frames[i].Seq)
		}
	}
	if frames[7].Chunked() {
		t.Fatal("clear command interleaved into chunked transfer")
	}
}

func TestSendCommand_RejectsUnknownAndQueueFull(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{writeDelay: 50 * time.Millisecond}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(conn))

	cfg := testConfig()
	cfg.QueueCapacity = 2
	m := New(scanner, cfg)
	defer m.Close()
	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := m.SendCommand(context.Background(), "zz:99", protocol.Clear{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Fill writer plus queue, then the next enqueue must fail fast.
	sawFull := false
	for i := 0; i < 10; i++ {
		err := m.SendCommand(context.Background(), "aa:01", protocol.Clear{})
		if errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !sawFull {
		t.Fatal("queue never reported ErrQueueFull")
	}
}

func TestBroadcast_IsolatesFailures(t *testing.T) {
	scanner := newFakeScanner()
	healthy := &fakeConn{}
	doomed := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(healthy))
	scanner.advertise("aa:02", "notif_test_b", func() (ble.Conn, error) {
		// First connect succeeds, reconnects keep failing so the
		// device stays out of Connected.
		return doomed, nil
	})

	m := New(scanner, testConfig())
	defer m.Close()
	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	doomed.breakLink()
	scanner.mu.Lock()
	scanner.conns["aa:02"] = func() (ble.Conn, error) { return nil, ble.ErrTimeout }
	scanner.mu.Unlock()

	results, err := m.Broadcast(context.Background(), protocol.Clear{Color: protocol.White})
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if got := results["aa:01"]; got != nil {
		t.Errorf("healthy device reported error: %v", got)
	}
	if got, ok := results["aa:02"]; ok && got == nil {
		t.Error("broken device reported success")
	}

	waitFor(t, time.Second, func() bool { return len(healthy.written()) == 1 })
}

func TestReconnect_RestoresDevice(t *testing.T) {
	scanner := newFakeScanner()
	first := &fakeConn{}
	second := &fakeConn{}

	attempt := 0
	scanner.advertise("aa:01", "notif_test_a", func() (ble.Conn, error) {
		attempt++
		switch attempt {
		case 1:
			return first, nil
		case 2:
			return nil, ble.ErrTimeout
		default:
			return second, nil
		}
	})

	m := New(scanner, testConfig())
	defer m.Close()

	events := m.Subscribe()
	defer m.Unsubscribe(events)

	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	first.breakLink()
	if err := m.SendCommand(context.Background(), "aa:01", protocol.Clear{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		snap, err := m.Device("aa:01")
		return err == nil && snap.State == StateConnected.String() && scanner.connectCount("aa:01") >= 3
	})

	// The restored link must carry subsequent commands.
	if err := m.SendCommand(context.Background(), "aa:01", protocol.Clear{}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return len(second.written()) >= 1 })

	var sawDisconnect, sawReconnect bool
	for {
		select {
		case evt := <-events:
			switch evt.Type {
			case EventDisconnected:
				sawDisconnect = true
			case EventConnected:
				sawReconnect = true
			}
		default:
			if !sawDisconnect || !sawReconnect {
				t.Fatalf("missing lifecycle events: disconnect=%v reconnect=%v", sawDisconnect, sawReconnect)
			}
			return
		}
	}
}

func TestReconnect_EvictsAfterRetryWindow(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{}

	attempt := 0
	scanner.advertise("aa:01", "notif_test_a", func() (ble.Conn, error) {
		attempt++
		if attempt == 1 {
			return conn, nil
		}
		return nil, ble.ErrTimeout
	})

	cfg := testConfig()
	cfg.RetryWindow = 50 * time.Millisecond
	m := New(scanner, cfg)
	defer m.Close()

	events := m.Subscribe()
	defer m.Unsubscribe(events)

	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	conn.breakLink()
	if err := m.SendCommand(context.Background(), "aa:01", protocol.Clear{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, err := m.Device("aa:01")
		return errors.Is(err, ErrNotFound)
	})

	sawEvicted := false
	for !sawEvicted {
		select {
		case evt := <-events:
			if evt.Type == EventEvicted {
				sawEvicted = true
			}
		case <-time.After(time.Second):
			t.Fatal("no eviction event received")
		}
	}
}

func TestAttach_SerialDeviceEvictedOnLoss(t *testing.T) {
	m := New(newFakeScanner(), testConfig())
	defer m.Close()

	conn := &fakeConn{}
	if err := m.Attach("/dev/ttyACM0", "notif_usb", conn); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	snap, err := m.Device("/dev/ttyACM0")
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateConnected.String() {
		t.Fatalf("attached device in state %s, want connected", snap.State)
	}

	conn.breakLink()
	if err := m.SendCommand(context.Background(), "/dev/ttyACM0", protocol.Clear{}); err != nil {
		t.Fatal(err)
	}

	// No reconnect path for serial devices: straight to eviction.
	waitFor(t, time.Second, func() bool {
		_, err := m.Device("/dev/ttyACM0")
		return errors.Is(err, ErrNotFound)
	})
}

func TestUnpair_RemovesDevice(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(conn))

	m := New(scanner, testConfig())
	defer m.Close()
	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := m.Unpair("aa:01"); err != nil {
		t.Fatalf("Unpair failed: %v", err)
	}
	if err := m.Unpair("aa:01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second unpair, got %v", err)
	}
	if err := m.SendCommand(context.Background(), "aa:01", protocol.Clear{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after unpair, got %v", err)
	}
}

func TestScanAndConnectAll_StatesProgress(t *testing.T) {
	scanner := newFakeScanner()
	gate := make(chan struct{})
	connA := &fakeConn{}
	connB := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", func() (ble.Conn, error) {
		<-gate
		return connA, nil
	})
	scanner.advertise("aa:02", "notif_test_b", func() (ble.Conn, error) {
		<-gate
		return connB, nil
	})

	cfg := testConfig()
	cfg.MaxConcurrentConnects = 1
	m := New(scanner, cfg)
	defer m.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
			t.Errorf("ScanAndConnectAll failed: %v", err)
		}
	}()

	// With one connect slot the first device sits mid-connect while
	// the second waits in the registry as discovered.
	waitFor(t, time.Second, func() bool {
		states := map[string]int{}
		for _, snap := range m.Status() {
			states[snap.State]++
		}
		return states[StateConnecting.String()] == 1 && states[StateDiscovered.String()] == 1
	})

	close(gate)
	<-done

	for _, snap := range m.Status() {
		if snap.State != StateConnected.String() {
			t.Errorf("device %s in state %s, want connected", snap.ID, snap.State)
		}
	}
}

func TestReconnect_BackoffGrowsToCap(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{}

	attempt := 0
	scanner.advertise("aa:01", "notif_test_a", func() (ble.Conn, error) {
		attempt++
		if attempt == 1 {
			return conn, nil
		}
		return nil, ble.ErrTimeout
	})

	cfg := testConfig()
	cfg.RetryWindow = 100 * time.Millisecond
	m := New(scanner, cfg)
	defer m.Close()

	events := m.Subscribe()
	defer m.Unsubscribe(events)

	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	conn.breakLink()
	if err := m.SendCommand(context.Background(), "aa:01", protocol.Clear{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, err := m.Device("aa:01")
		return errors.Is(err, ErrNotFound)
	})

	var backoffs []time.Duration
drained:
	for {
		select {
		case evt := <-events:
			if evt.Type == EventReconnecting {
				backoffs = append(backoffs, evt.Device.Backoff)
			}
		default:
			break drained
		}
	}

	if len(backoffs) < 3 {
		t.Fatalf("expected several reconnect attempts, got %d", len(backoffs))
	}
	if backoffs[0] != cfg.BackoffBase {
		t.Errorf("first backoff = %v, want base %v", backoffs[0], cfg.BackoffBase)
	}
	for i := 1; i < len(backoffs); i++ {
		if backoffs[i] < backoffs[i-1] {
			t.Errorf("backoff shrank from %v to %v at attempt %d", backoffs[i-1], backoffs[i], i)
		}
		if backoffs[i] > cfg.BackoffCap {
			t.Errorf("backoff %v exceeds cap %v", backoffs[i], cfg.BackoffCap)
		}
	}
	if backoffs[len(backoffs)-1] != cfg.BackoffCap {
		t.Errorf("final backoff = %v, never reached cap %v", backoffs[len(backoffs)-1], cfg.BackoffCap)
	}
}

func TestClose_StopsEverything(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(conn))

	m := New(scanner, testConfig())
	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	events := m.Subscribe()
	m.Close()

	if _, open := <-events; open {
		// Drain any buffered lifecycle events before the close check.
		for range events {
		}
	}

	if _, err := m.ScanAndConnectAll(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestClose_RejectsLateCommands(t *testing.T) {
	scanner := newFakeScanner()
	conn := &fakeConn{}
	scanner.advertise("aa:01", "notif_test_a", steadyConn(conn))

	m := New(scanner, testConfig())
	if _, err := m.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	m.Close()

	// The writer is gone. Acceptance now would strand the command in
	// a queue nothing reads.
	err := m.SendCommand(context.Background(), "aa:01", protocol.Clear{})
	if !errors.Is(err, ErrDeviceNotConnected) {
		t.Fatalf("expected ErrDeviceNotConnected after Close, got %v", err)
	}

	// Broadcast must see no connected targets and return immediately
	// rather than wait on an abandoned delivery.
	results, err := m.Broadcast(context.Background(), protocol.Clear{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no broadcast targets after Close, got %v", results)
	}
}
