package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListVehicles returns the discovered vehicles.
func (h *Handler) ListVehicles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.account.Vehicles()})
}

// GetVehicle returns one vehicle's metadata plus its polling status.
func (h *Handler) GetVehicle(c *gin.Context) {
	vin := c.Param("vin")
	telemetry, err := h.account.Telemetry(vin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	gps, err := h.account.GPS(vin)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"vehicle":          telemetry.Vehicle(),
		"polling_enabled":  telemetry.PollingEnabled(),
		"poll_interval":    telemetry.CurrentInterval().String(),
		"gps_interval":     gps.CurrentInterval().String(),
		"lifecycle_state":  telemetry.LifecycleState(),
		"pending_commands": h.dispatcher.Pending(vin),
	}})
}

// GetSnapshot returns the merged telemetry view including the latest
// position. 204 when no cycle has completed yet.
func (h *Handler) GetSnapshot(c *gin.Context) {
	vin := c.Param("vin")
	snap, err := h.account.CombinedSnapshot(vin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if snap == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// GetGps returns the latest position.
func (h *Handler) GetGps(c *gin.Context) {
	vin := c.Param("vin")
	gps, err := h.account.GPS(vin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	pos := gps.Position()
	if pos == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pos})
}

// GetFreshness exposes the per-vehicle freshness timestamps.
func (h *Handler) GetFreshness(c *gin.Context) {
	vin := c.Param("vin")
	telemetry, err := h.account.Telemetry(vin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	gps, err := h.account.GPS(vin)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"telemetry_freshness":     nullableTime(telemetry.TelemetryFreshness()),
		"telemetry_last_received": nullableTime(telemetry.TelemetryLastReceived()),
		"last_transmission":       nullableTime(telemetry.LastTransmission()),
		"gps_freshness":           nullableTime(gps.GpsFreshness()),
	}})
}

// ForceRefresh schedules an immediate telemetry and GPS cycle.
func (h *Handler) ForceRefresh(c *gin.Context) {
	vin := c.Param("vin")
	if err := h.account.ForceRefresh(vin); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "refresh scheduled"})
}

// SetPolling pauses or resumes cloud polling for one vehicle.
func (h *Handler) SetPolling(c *gin.Context) {
	vin := c.Param("vin")

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain enabled"})
		return
	}

	if err := h.account.SetPollingEnabled(vin, *req.Enabled); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "polling updated", "enabled": *req.Enabled})
}

// ListPositions returns the recorded GPS history for a time range.
func (h *Handler) ListPositions(c *gin.Context) {
	vin := c.Param("vin")
	carID, ok := h.recorder.CarID(vin)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown vehicle"})
		return
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		to = t
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))

	positions, err := h.posRepo.ListRange(c.Request.Context(), carID, from, to, limit)
	if err != nil {
		h.logger.Error("list positions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list positions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": positions})
}

// nullableTime renders the zero time as null instead of year one.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
