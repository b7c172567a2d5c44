package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/api/handlers"
	"github.com/langchou/bydgazer/internal/command"
	"github.com/langchou/bydgazer/internal/config"
	"github.com/langchou/bydgazer/internal/coordinator"
	"github.com/langchou/bydgazer/internal/debugdump"
	"github.com/langchou/bydgazer/internal/freshness"
	"github.com/langchou/bydgazer/internal/repository"
	"github.com/langchou/bydgazer/internal/service"
	"github.com/langchou/bydgazer/internal/session"
	"github.com/langchou/bydgazer/pkg/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Bydgazer",
		zap.String("port", cfg.ServerPort),
		zap.String("region", cfg.BydRegion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	carRepo := repository.NewCarRepository(db)
	posRepo := repository.NewPositionRepository(db)
	cmdRepo := repository.NewCommandRepository(db)

	var trace byd.TraceRecorder
	if cfg.DebugDumps {
		dumper, err := debugdump.NewWriter(logger, cfg.DebugDumpDir)
		if err != nil {
			logger.Fatal("Failed to create dump writer", zap.Error(err))
		}
		trace = dumper.Record
		logger.Info("Debug dumps enabled", zap.String("dir", cfg.DebugDumpDir))
	}

	gateway := session.NewGateway(logger, func() (byd.Client, error) {
		return byd.NewHTTPClient(byd.Config{
			Username:    cfg.BydUsername,
			Password:    cfg.BydPassword,
			BaseURL:     cfg.BydBaseURL,
			CountryCode: cfg.BydCountryCode,
			Language:    cfg.BydLanguage,
			TimeZone:    cfg.BydTimeZone,
			ControlPIN:  cfg.BydControlPIN,
			DeviceID:    cfg.BydDeviceID,
			Timeout:     cfg.BydTimeout,
		}, trace), nil
	})

	tracker := freshness.NewTracker()
	account := coordinator.NewAccount(logger, gateway, tracker, coordinator.AccountConfig{
		Telemetry: coordinator.TelemetryConfig{
			PollInterval:     cfg.PollInterval,
			ActiveInterval:   cfg.ActiveInterval,
			InactiveInterval: cfg.InactiveInterval,
			VehicleOnState:   cfg.VehicleOnState,
		},
		GPS: coordinator.GPSConfig{
			Interval:         cfg.GpsPollInterval,
			ActiveInterval:   cfg.GpsActiveInterval,
			InactiveInterval: cfg.GpsInactiveInterval,
			SmartPolling:     cfg.SmartGpsPolling,
		},
	})

	recorder := service.NewRecorder(logger, carRepo, posRepo, cmdRepo)
	recorder.Attach(account)

	wsHub := ws.NewHub(logger)

	account.OnSnapshot(func(vin string, snap *coordinator.Snapshot) {
		wsHub.BroadcastSnapshot(vin, snap)
	})
	account.OnPosition(func(vin string, gps *byd.Gps) {
		wsHub.BroadcastPosition(vin, gps)
	})

	wsHub.SetInitDataProvider(func() *ws.InitData {
		vehicles := account.Vehicles()
		snapshots := make(map[string]*coordinator.Snapshot, len(vehicles))
		for _, v := range vehicles {
			if snap, err := account.CombinedSnapshot(v.VIN); err == nil && snap != nil {
				snapshots[v.VIN] = snap
			}
		}
		return &ws.InitData{Vehicles: vehicles, Snapshots: snapshots}
	})

	go wsHub.Run()

	dispatcher := command.NewDispatcher(logger, gateway, account)

	vehicles, err := account.Discover(ctx)
	if err != nil {
		logger.Fatal("Vehicle discovery failed", zap.Error(err))
	}
	if err := recorder.RegisterVehicles(ctx, vehicles); err != nil {
		logger.Fatal("Failed to persist vehicles", zap.Error(err))
	}
	logger.Info("Vehicles discovered", zap.Int("count", len(vehicles)))

	account.Start(ctx)

	handler := handlers.NewHandler(
		logger,
		account,
		gateway,
		dispatcher,
		recorder,
		carRepo,
		posRepo,
		cmdRepo,
		wsHub,
	)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	account.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
