package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifd/notifd/pkg/api/types"
	"github.com/notifd/notifd/pkg/imaging"
	"github.com/notifd/notifd/pkg/manager"
	"github.com/notifd/notifd/pkg/protocol"
	"github.com/notifd/notifd/pkg/protocol/schema"
)

// ControlHandler handles the command dispatch endpoints
type ControlHandler struct {
	mgr       *manager.Manager
	validator *schema.Validator
}

// NewControlHandler creates a new control handler
func NewControlHandler(mgr *manager.Manager, validator *schema.Validator) *ControlHandler {
	return &ControlHandler{mgr: mgr, validator: validator}
}

// SendText handles POST /devices/:id/text
// @Summary      Send text
// @Description  Queues a text command for one display
// @Tags         control
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Device ID"
// @Param        request  body      types.SendTextRequest  true  "Text to display"
// @Success      202      {object}  types.SendResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      409      {object}  types.ErrorResponse  "Device not connected"
// @Failure      429      {object}  types.ErrorResponse  "Queue full"
// @Router       /devices/{id}/text [post]
func (h *ControlHandler) SendText(c *gin.Context) {
	id := c.Param("id")

	var req types.SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	cmd := textCommand(req)
	if err := h.mgr.SendCommand(c.Request.Context(), id, cmd); err != nil {
		respondManagerError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, types.SendResponse{
		Status:    "queued",
		Device:    id,
		Timestamp: time.Now(),
	})
}

// Clear handles POST /devices/:id/clear
// @Summary      Clear screen
// @Description  Queues a full-screen clear for one display
// @Tags         control
// @Accept       json
// @Produce      json
// @Param        id       path      string              true   "Device ID"
// @Param        request  body      types.ClearRequest  false  "Fill color (default black)"
// @Success      202      {object}  types.SendResponse
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      409      {object}  types.ErrorResponse  "Device not connected"
// @Router       /devices/{id}/clear [post]
func (h *ControlHandler) Clear(c *gin.Context) {
	id := c.Param("id")

	var req types.ClearRequest
	_ = c.ShouldBindJSON(&req)

	cmd := protocol.Clear{Color: protocol.ParseColorOr(req.Color, protocol.Black)}
	if err := h.mgr.SendCommand(c.Request.Context(), id, cmd); err != nil {
		respondManagerError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, types.SendResponse{
		Status:    "queued",
		Device:    id,
		Timestamp: time.Now(),
	})
}

// Command handles POST /devices/:id/command
// @Summary      Send raw command
// @Description  Queues a free-form JSON command, validated against the command schema
// @Tags         control
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Device ID"
// @Param        request  body      object  true  "Command payload"
// @Success      202      {object}  types.SendResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid or unschematic command"
// @Failure      404      {object}  types.ErrorResponse  "Device not found"
// @Failure      409      {object}  types.ErrorResponse  "Device not connected"
// @Router       /devices/{id}/command [post]
func (h *ControlHandler) Command(c *gin.Context) {
	id := c.Param("id")

	var payload map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}

	if err := h.validator.Validate(payload); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	cmd, err := protocol.FromMap(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_command",
			Message: err.Error(),
		})
		return
	}

	if err := h.mgr.SendCommand(c.Request.Context(), id, cmd); err != nil {
		respondManagerError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, types.SendResponse{
		Status:    "queued",
		Device:    id,
		Timestamp: time.Now(),
	})
}

// Image handles POST /devices/:id/image
// @Summary      Send image
// @Description  Uploads a PNG or JPEG, fits it to the panel and queues the pixel transfer
// @Tags         control
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string  true   "Device ID"
// @Param        image  formData  file    true   "Image file"
// @Param        fit    formData  string  false  "Fit mode: contain, cover, fill, scale_down, none"
// @Success      202    {object}  types.ImageResponse
// @Failure      400    {object}  types.ErrorResponse  "Invalid upload"
// @Failure      404    {object}  types.ErrorResponse  "Device not found"
// @Failure      409    {object}  types.ErrorResponse  "Device not connected"
// @Router       /devices/{id}/image [post]
func (h *ControlHandler) Image(c *gin.Context) {
	id := c.Param("id")

	fit, err := imaging.ParseFitMode(c.PostForm("fit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_fit_mode",
			Message: err.Error(),
		})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_upload",
			Message: "Missing image file",
		})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, imaging.MaxInputBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_upload",
			Message: "Failed to read image file",
		})
		return
	}

	processed, err := imaging.Process(data, fit)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "image_processing_failed",
			Message: err.Error(),
		})
		return
	}

	cmd := protocol.Image{Pixels: processed.Pixels}
	if err := h.mgr.SendCommand(c.Request.Context(), id, cmd); err != nil {
		respondManagerError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, types.ImageResponse{
		Status:    "queued",
		Device:    id,
		Format:    processed.Format,
		Width:     processed.Width,
		Height:    processed.Height,
		Timestamp: time.Now(),
	})
}

// Broadcast handles POST /broadcast
// @Summary      Broadcast text
// @Description  Sends a text command to every connected display and reports per-device results
// @Tags         control
// @Accept       json
// @Produce      json
// @Param        request  body      types.SendTextRequest  true  "Text to display"
// @Success      200      {object}  types.BroadcastResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Router       /broadcast [post]
func (h *ControlHandler) Broadcast(c *gin.Context) {
	var req types.SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	results, err := h.mgr.Broadcast(c.Request.Context(), textCommand(req))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_command",
			Message: err.Error(),
		})
		return
	}

	resp := types.BroadcastResponse{
		Results:   make(map[string]string, len(results)),
		Timestamp: time.Now(),
	}
	for id, derr := range results {
		if derr != nil {
			resp.Results[id] = derr.Error()
			resp.Failed++
			continue
		}
		resp.Results[id] = "delivered"
		resp.Succeeded++
	}

	c.JSON(http.StatusOK, resp)
}

// textCommand builds a protocol.Text from the request defaults: white
// on black, medium font, top-left origin.
func textCommand(req types.SendTextRequest) protocol.Text {
	return protocol.Text{
		X:          req.X,
		Y:          req.Y,
		Size:       protocol.ParseSize(req.Size),
		Foreground: protocol.ParseColorOr(req.Foreground, protocol.White),
		Background: protocol.ParseColorOr(req.Background, protocol.Black),
		Content:    req.Text,
	}
}
