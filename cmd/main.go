package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"depth-studio-backend/internal/ai"
	"depth-studio-backend/internal/config"
	"depth-studio-backend/internal/logger"
	"depth-studio-backend/internal/telemetry"
	"depth-studio-backend/middleware"
	"depth-studio-backend/routes"
	"depth-studio-backend/services"
	"depth-studio-backend/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.InitLogger(&config.Config{GinMode: "release"})
		logger.Error("Failed to load config", "error", err)
		logger.Sync()
		os.Exit(1)
	}

	logger.InitLogger(cfg)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("Server exited with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config) error {
	// Telemetry
	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracer(cfg)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := utils.WithTimeout(context.Background())
			defer cancel()
			shutdownTracer(ctx)
		}()
	}

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider()
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := utils.WithTimeout(context.Background())
		defer cancel()
		_ = shutdownMeter(ctx)
	}()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return err
	}

	// Redis is optional; without it requests are not rate limited
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Warn("REDIS_URL not set, rate limiting disabled")
	}

	store, err := services.NewImageStore(cfg.OutputDir)
	if err != nil {
		return err
	}

	generator, err := ai.NewGenerator(cfg, metrics)
	if err != nil {
		return err
	}
	generationService := services.NewGenerationService(cfg, generator, store, metrics)

	if cfg.OutputRetention > 0 {
		retention := services.NewRetentionService(store, metrics, cfg.OutputRetention, cfg.RetentionSweepInterval)
		if err := retention.Start(); err != nil {
			return err
		}
		defer retention.Stop()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestLoggingMiddleware())
	router.Use(middleware.RecoveryMiddleware())
	if cfg.OTelEnabled {
		router.Use(middleware.TracingMiddleware(cfg.OTelServiceName))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.MaxUploadSize))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	router.GET("/metrics", gin.WrapH(metricsHandler))
	routes.SetupGenerateRoutes(router, cfg, generationService, store)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			"port", cfg.Port,
			"output_dir", cfg.OutputDir,
			"generator", cfg.GeneratorProvider,
			"sdapi_url", cfg.SDAPIURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("Shutting down server...")

	// In-flight generations may take a while; give them the generation timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
