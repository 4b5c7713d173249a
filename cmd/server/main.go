package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"vpp_simulator/internal/api"
	"vpp_simulator/internal/config"
	"vpp_simulator/internal/logging"
	"vpp_simulator/internal/messaging"
	"vpp_simulator/internal/metrics"
	"vpp_simulator/internal/repository"
	"vpp_simulator/internal/scenario"
	"vpp_simulator/internal/service"
	"vpp_simulator/internal/simulator"
	"vpp_simulator/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting VPP simulator", zap.String("port", cfg.ServerPort), zap.String("scenario", cfg.ScenarioFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}
	defer a.Close()

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: a.router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	a.svc.Stop()
	a.hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// app holds everything the server wires together.
type app struct {
	router *gin.Engine
	svc    *service.Service
	hub    *ws.Hub
	repo   repository.Repository
	nc     *nats.Conn
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	sc, dir, err := scenario.LoadFile(cfg.ScenarioFile)
	if err != nil {
		return nil, err
	}
	if cfg.Seed != 0 {
		sc.Seed = cfg.Seed
	}
	sim, err := sc.Build(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("build scenario: %w", err)
	}

	a := &app{}
	a.repo, err = repository.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	if a.repo == nil {
		logger.Info("Persistence disabled")
	}

	a.hub = ws.NewHub(logger)
	bridge := ws.NewBridge(a.hub)
	collector := metrics.New()
	runCallbacks := simulator.MultiCallback{bridge, collector}

	if cfg.NATSURL != "" {
		a.nc, err = messaging.Connect(messaging.Config{URL: cfg.NATSURL, Name: "vpp-simulator"}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		runCallbacks = append(runCallbacks, messaging.NewPublisher(a.nc, cfg.NATSSubject, logger))
	}

	opts := []service.Option{
		service.WithRunCallback(runCallbacks),
		service.WithReplayCallback(bridge),
		service.WithLogger(logger),
		service.WithReplaySpeed(cfg.ReplaySpeed),
	}
	if a.repo != nil {
		opts = append(opts, service.WithRepository(a.repo))
	}
	a.svc = service.New(sim, opts...)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	a.router = gin.New()
	a.router.Use(gin.Recovery())
	a.router.Use(corsMiddleware())
	api.NewHandler(logger, a.svc, a.repo, ws.NewHandler(a.hub, a.svc), collector.Handler()).RegisterRoutes(a.router)
	return a, nil
}

func (a *app) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
