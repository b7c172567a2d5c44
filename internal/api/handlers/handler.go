package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/command"
	"github.com/langchou/bydgazer/internal/coordinator"
	"github.com/langchou/bydgazer/internal/repository"
	"github.com/langchou/bydgazer/internal/service"
	"github.com/langchou/bydgazer/internal/session"
	"github.com/langchou/bydgazer/pkg/ws"
)

// Handler serves the HTTP API.
type Handler struct {
	logger     *zap.Logger
	account    *coordinator.Account
	gateway    *session.Gateway
	dispatcher *command.Dispatcher
	recorder   *service.Recorder
	carRepo    *repository.CarRepository
	posRepo    *repository.PositionRepository
	cmdRepo    *repository.CommandRepository
	wsHub      *ws.Hub
	upgrader   websocket.Upgrader
}

func NewHandler(
	logger *zap.Logger,
	account *coordinator.Account,
	gateway *session.Gateway,
	dispatcher *command.Dispatcher,
	recorder *service.Recorder,
	carRepo *repository.CarRepository,
	posRepo *repository.PositionRepository,
	cmdRepo *repository.CommandRepository,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:     logger,
		account:    account,
		gateway:    gateway,
		dispatcher: dispatcher,
		recorder:   recorder,
		carRepo:    carRepo,
		posRepo:    posRepo,
		cmdRepo:    cmdRepo,
		wsHub:      wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // dev setup, no origin restriction
			},
		},
	}
}

// RegisterRoutes mounts the API.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// Vehicles and live state
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin", h.GetVehicle)
		api.GET("/vehicles/:vin/snapshot", h.GetSnapshot)
		api.GET("/vehicles/:vin/gps", h.GetGps)
		api.GET("/vehicles/:vin/freshness", h.GetFreshness)
		api.GET("/vehicles/:vin/positions", h.ListPositions)

		// Polling control
		api.POST("/vehicles/:vin/refresh", h.ForceRefresh)
		api.POST("/vehicles/:vin/polling", h.SetPolling)

		// Remote commands
		api.GET("/vehicles/:vin/commands", h.ListCommands)
		api.POST("/vehicles/:vin/commands/:command", h.DispatchCommand)
		api.GET("/vehicles/:vin/commands/:command/last", h.GetLastCommandResult)

		// Cloud-side settings
		api.POST("/vehicles/:vin/smart-charging", h.SetSmartCharging)
		api.PUT("/vehicles/:vin/charging-schedule", h.SaveChargingSchedule)
		api.POST("/vehicles/:vin/name", h.RenameVehicle)
		api.GET("/vehicles/:vin/push", h.GetPushState)
		api.POST("/vehicles/:vin/push", h.SetPushState)
	}

	r.GET("/ws", h.HandleWebSocket)
	r.GET("/health", h.HealthCheck)
}

// respondError maps domain errors onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, coordinator.ErrUnknownVehicle):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, command.ErrCommandUnsupported):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, command.ErrUnknownCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// HandleWebSocket upgrades the connection and hands it to the hub.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
