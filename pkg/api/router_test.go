package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/notifd/notifd/pkg/ble"
	"github.com/notifd/notifd/pkg/manager"
	"github.com/notifd/notifd/pkg/protocol"
	"github.com/notifd/notifd/pkg/protocol/schema"
)

type stubConn struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (c *stubConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ble.ErrClosed
	}
	c.frames++
	return nil
}

func (c *stubConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type stubScanner struct {
	devices []ble.DeviceDescriptor
}

func (s *stubScanner) Scan(ctx context.Context, prefix string, timeout time.Duration) (<-chan ble.DeviceDescriptor, error) {
	out := make(chan ble.DeviceDescriptor, len(s.devices))
	for _, d := range s.devices {
		out <- d
	}
	close(out)
	return out, nil
}

func (s *stubScanner) Connect(ctx context.Context, desc ble.DeviceDescriptor, timeout time.Duration) (ble.Conn, error) {
	return &stubConn{}, nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	scanner := &stubScanner{devices: []ble.DeviceDescriptor{
		{ID: "aa:01", Name: "notif_atoms3_a", RSSI: -55},
		{ID: "aa:02", Name: "notif_atoms3_b", RSSI: -70},
	}}

	mgr := manager.New(scanner, manager.Config{
		ScanTimeout:    100 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	t.Cleanup(mgr.Close)

	if _, err := mgr.ScanAndConnectAll(context.Background()); err != nil {
		t.Fatalf("seed devices: %v", err)
	}

	return NewRouter(mgr, schema.NewValidator())
}

func doJSON(t *testing.T, r *Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Status    string `json:"status"`
		Devices   int    `json:"devices"`
		Connected int    `json:"connected"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Devices != 2 || resp.Connected != 2 {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestListAndGetDevices(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"count":2`) {
		t.Errorf("list body: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/devices/aa:01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/devices/zz:99", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing device status = %d, want 404", w.Code)
	}
}

func TestSendTextEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/devices/aa:01/text", map[string]any{
		"text": "hello",
		"size": "large",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"queued"`) {
		t.Errorf("body: %s", w.Body.String())
	}

	// Missing text field fails binding.
	w = doJSON(t, r, http.MethodPost, "/api/v1/devices/aa:01/text", map[string]any{"size": "small"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want 400", w.Code)
	}

	// Text beyond the 255-byte wire limit fails binding too.
	w = doJSON(t, r, http.MethodPost, "/api/v1/devices/aa:01/text", map[string]any{
		"text": strings.Repeat("x", 300),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized text status = %d, want 400", w.Code)
	}

	// Unknown device.
	w = doJSON(t, r, http.MethodPost, "/api/v1/devices/zz:99/text", map[string]any{"text": "hi"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown device status = %d, want 404", w.Code)
	}
}

func TestCommandEndpointValidates(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/devices/aa:01/command", map[string]any{
		"type":  "clear",
		"color": map[string]any{"r": 0, "g": 0, "b": 255},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("valid command status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/devices/aa:01/command", map[string]any{
		"type": "explode",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid command status = %d, want 400", w.Code)
	}
}

func TestUnpairEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodDelete, "/api/v1/devices/aa:01", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unpair status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/devices/aa:01", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after unpair = %d, want 404", w.Code)
	}
}

func TestBroadcastEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/broadcast", map[string]any{"text": "all hands"})
	if w.Code != http.StatusOK {
		t.Fatalf("broadcast status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Results   map[string]string `json:"results"`
		Succeeded int               `json:"succeeded"`
		Failed    int               `json:"failed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Succeeded != 2 || resp.Failed != 0 {
		t.Errorf("broadcast results: %+v", resp)
	}
}

func TestScanEndpoint(t *testing.T) {
	r := newTestRouter(t)

	// Devices are already registered, so a second pass connects nothing
	// new but still succeeds.
	w := doJSON(t, r, http.MethodPost, "/api/v1/discovery/scan", map[string]any{"timeout_seconds": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/discovery/scan", map[string]any{"timeout_seconds": 9999})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized timeout status = %d, want 400", w.Code)
	}
}
