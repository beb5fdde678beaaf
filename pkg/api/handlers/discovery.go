package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifd/notifd/pkg/api/types"
	"github.com/notifd/notifd/pkg/manager"
)

// DiscoveryHandler handles device discovery endpoints
type DiscoveryHandler struct {
	mgr *manager.Manager
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(mgr *manager.Manager) *DiscoveryHandler {
	return &DiscoveryHandler{mgr: mgr}
}

// Scan handles POST /discovery/scan
// @Summary      Scan and connect
// @Description  Runs one discovery pass and connects to every matching display not already registered
// @Tags         discovery
// @Accept       json
// @Produce      json
// @Param        request  body      types.ScanRequest  false  "Overall pass timeout (default 60 seconds, max 600)"
// @Success      200      {object}  types.ScanResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid timeout"
// @Failure      503      {object}  types.ErrorResponse  "Scan failed"
// @Router       /discovery/scan [post]
func (h *DiscoveryHandler) Scan(c *gin.Context) {
	var req types.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.TimeoutSeconds = 60
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 60
	}
	if req.TimeoutSeconds > 600 {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_timeout",
			Message: "Timeout cannot exceed 600 seconds",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	defer cancel()

	report, err := h.mgr.ScanAndConnectAll(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
			Error:   "scan_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.ScanResponse{
		Connected: report.Connected,
		Failed:    report.Failed,
		Count:     len(report.Connected),
	})
}

// Events handles GET /discovery/events (SSE stream)
// @Summary      Subscribe to lifecycle events
// @Description  Server-Sent Events stream of device connect/disconnect/evict notifications
// @Tags         discovery
// @Produce      text/event-stream
// @Success      200  {string}  string  "SSE event stream"
// @Router       /discovery/events [get]
func (h *DiscoveryHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	eventChan := h.mgr.Subscribe()
	defer h.mgr.Unsubscribe(eventChan)

	sendSSEEvent(c.Writer, "connected", map[string]any{
		"timestamp": time.Now(),
		"message":   "Connected to device event stream",
	})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	// Heartbeat ticker
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			sendSSEEvent(c.Writer, string(event.Type), map[string]any{
				"type":      event.Type,
				"device":    event.Device,
				"timestamp": event.Timestamp,
			})
			c.Writer.Flush()

		case <-ticker.C:
			sendSSEEvent(c.Writer, "heartbeat", map[string]any{
				"timestamp": time.Now(),
			})
			c.Writer.Flush()
		}
	}
}

// sendSSEEvent writes an SSE event to the response
func sendSSEEvent(w io.Writer, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	io.WriteString(w, "event: "+eventType+"\n")
	io.WriteString(w, "data: "+string(jsonData)+"\n\n")
}
