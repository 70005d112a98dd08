package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/medref"
	"github.com/menta2k/medref/internal/config"
	"github.com/menta2k/medref/internal/logging"
	"github.com/menta2k/medref/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional JSON or YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	pipeline, err := medref.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := server.NewHandler(pipeline, logger, cfg.Server.MaxUploadSize, pipeline.Model())
	router := server.NewRouter(handler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router.SetupRoutes(),
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Vision.Backend),
			zap.String("model", pipeline.Model()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
