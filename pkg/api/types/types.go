package types

import (
	"time"

	"github.com/notifd/notifd/pkg/manager"
)

// --- Request DTOs ---

// ScanRequest is the request body for POST /discovery/scan
type ScanRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SendTextRequest is the request body for POST /devices/:id/text and
// POST /broadcast
type SendTextRequest struct {
	Text       string `json:"text" binding:"required,max=255"`
	X          uint8  `json:"x"`
	Y          uint8  `json:"y"`
	Size       string `json:"size"`
	Foreground string `json:"foreground"`
	Background string `json:"background"`
}

// ClearRequest is the request body for POST /devices/:id/clear
type ClearRequest struct {
	Color string `json:"color"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Devices   int       `json:"devices"`
	Connected int       `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanResponse is returned from POST /discovery/scan
type ScanResponse struct {
	Connected []string          `json:"connected"`
	Failed    map[string]string `json:"failed,omitempty"`
	Count     int               `json:"count"`
}

// ListDevicesResponse is returned from GET /devices
type ListDevicesResponse struct {
	Devices []manager.Snapshot `json:"devices"`
	Count   int                `json:"count"`
}

// DeviceResponse is returned from GET /devices/:id
type DeviceResponse struct {
	Device manager.Snapshot `json:"device"`
}

// SendResponse is returned from the command endpoints. A queued status
// means the command was accepted, not that it reached the display.
type SendResponse struct {
	Status    string    `json:"status"`
	Device    string    `json:"device"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageResponse is returned from POST /devices/:id/image
type ImageResponse struct {
	Status    string    `json:"status"`
	Device    string    `json:"device"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

// BroadcastResponse is returned from POST /broadcast
type BroadcastResponse struct {
	Results   map[string]string `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Timestamp time.Time         `json:"timestamp"`
}
