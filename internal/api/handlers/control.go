package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/command"
)

// DispatchCommand executes a remote command and records the attempt.
func (h *Handler) DispatchCommand(c *gin.Context) {
	vin := c.Param("vin")
	name := c.Param("command")

	var params command.Params
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command parameters"})
			return
		}
	}

	outcome, err := h.dispatcher.Dispatch(c.Request.Context(), vin, name, params)
	h.recorder.RecordCommand(c.Request.Context(), vin, name, outcome, err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

// ListCommands returns the persisted command history for a vehicle.
func (h *Handler) ListCommands(c *gin.Context) {
	vin := c.Param("vin")
	carID, ok := h.recorder.CarID(vin)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown vehicle"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	commands, err := h.cmdRepo.ListRecent(c.Request.Context(), carID, limit)
	if err != nil {
		h.logger.Error("list commands failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list commands"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": commands})
}

// GetLastCommandResult returns the in-memory outcome of the most recent
// attempt, including availability of the command for this vehicle.
func (h *Handler) GetLastCommandResult(c *gin.Context) {
	vin := c.Param("vin")
	name := c.Param("command")

	result, ok := h.gateway.LastCommandResult(vin, name)
	supported := h.dispatcher.IsSupported(vin, name)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"supported": supported}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"supported": supported,
		"last":      result,
	}})
}

// SetSmartCharging toggles smart charging on the cloud side.
func (h *Handler) SetSmartCharging(c *gin.Context) {
	vin := c.Param("vin")

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain enabled"})
		return
	}

	_, err := h.gateway.Call(c.Request.Context(), func(ctx context.Context, client byd.Client) (any, error) {
		return nil, client.ToggleSmartCharging(ctx, vin, *req.Enabled)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "smart charging updated", "enabled": *req.Enabled})
}

// SaveChargingSchedule stores a charging window and SoC target.
func (h *Handler) SaveChargingSchedule(c *gin.Context) {
	vin := c.Param("vin")

	cfg := byd.DefaultSmartChargingConfig()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid charging schedule"})
		return
	}
	if cfg.TargetSoc < 10 || cfg.TargetSoc > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_soc must be between 10 and 100"})
		return
	}

	_, err := h.gateway.Call(c.Request.Context(), func(ctx context.Context, client byd.Client) (any, error) {
		return nil, client.SaveChargingSchedule(ctx, vin, cfg)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

// RenameVehicle sets the vehicle alias in the cloud and mirrors it in
// the local database.
func (h *Handler) RenameVehicle(c *gin.Context) {
	vin := c.Param("vin")

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain name"})
		return
	}

	_, err := h.gateway.Call(c.Request.Context(), func(ctx context.Context, client byd.Client) (any, error) {
		return nil, client.RenameVehicle(ctx, vin, req.Name)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.carRepo.UpdateName(c.Request.Context(), vin, req.Name); err != nil {
		h.logger.Warn("persist vehicle name failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "vehicle renamed", "name": req.Name})
}

// GetPushState reads the cloud push notification switch.
func (h *Handler) GetPushState(c *gin.Context) {
	vin := c.Param("vin")

	res, err := h.gateway.Call(c.Request.Context(), func(ctx context.Context, client byd.Client) (any, error) {
		return client.GetPushState(ctx, vin)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// SetPushState toggles cloud push notifications.
func (h *Handler) SetPushState(c *gin.Context) {
	vin := c.Param("vin")

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain enabled"})
		return
	}

	_, err := h.gateway.Call(c.Request.Context(), func(ctx context.Context, client byd.Client) (any, error) {
		return nil, client.SetPushState(ctx, vin, *req.Enabled)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "push state updated", "enabled": *req.Enabled})
}
