package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifd/notifd/pkg/api/types"
	"github.com/notifd/notifd/pkg/manager"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	mgr *manager.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mgr *manager.Manager) *HealthHandler {
	return &HealthHandler{mgr: mgr}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Returns the service status and device counts
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Service is healthy"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	snaps := h.mgr.Status()

	connected := 0
	for _, s := range snaps {
		if s.State == manager.StateConnected.String() {
			connected++
		}
	}

	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Devices:   len(snaps),
		Connected: connected,
		Timestamp: time.Now(),
	})
}
