package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/notifd/notifd/pkg/api/types"
	"github.com/notifd/notifd/pkg/manager"
)

// DevicesHandler handles device registry endpoints
type DevicesHandler struct {
	mgr *manager.Manager
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(mgr *manager.Manager) *DevicesHandler {
	return &DevicesHandler{mgr: mgr}
}

// ListDevices handles GET /devices
// @Summary      List devices
// @Description  Returns every device in the registry with its connection state
// @Tags         devices
// @Produce      json
// @Success      200  {object}  types.ListDevicesResponse
// @Router       /devices [get]
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	snaps := h.mgr.Status()
	c.JSON(http.StatusOK, types.ListDevicesResponse{
		Devices: snaps,
		Count:   len(snaps),
	})
}

// GetDevice handles GET /devices/:id
// @Summary      Get device
// @Description  Returns one device's registry record
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device ID (BLE address or serial port)"
// @Success      200  {object}  types.DeviceResponse
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Router       /devices/{id} [get]
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	snap, err := h.mgr.Device(c.Param("id"))
	if err != nil {
		respondManagerError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.DeviceResponse{Device: snap})
}

// RemoveDevice handles DELETE /devices/:id
// @Summary      Unpair device
// @Description  Disconnects the device and removes it from the registry
// @Tags         devices
// @Produce      json
// @Param        id   path  string  true  "Device ID (BLE address or serial port)"
// @Success      204  "Device removed"
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Router       /devices/{id} [delete]
func (h *DevicesHandler) RemoveDevice(c *gin.Context) {
	if err := h.mgr.Unpair(c.Param("id")); err != nil {
		respondManagerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondManagerError maps manager errors to HTTP status codes.
func respondManagerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Device not found",
		})
	case errors.Is(err, manager.ErrDeviceNotConnected):
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   "device_not_connected",
			Message: err.Error(),
		})
	case errors.Is(err, manager.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, types.ErrorResponse{
			Error:   "queue_full",
			Message: "Device queue is full, retry later",
		})
	case errors.Is(err, manager.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
			Error:   "shutting_down",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "manager_error",
			Message: err.Error(),
		})
	}
}
