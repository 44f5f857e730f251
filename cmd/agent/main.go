package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldops/OpenFieldAgent/internal/api/rest"
	"github.com/fieldops/OpenFieldAgent/internal/config"
	"github.com/fieldops/OpenFieldAgent/internal/platform"
	"github.com/fieldops/OpenFieldAgent/internal/storage"
	"github.com/fieldops/OpenFieldAgent/internal/system"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Config loaded successfully")

	db, err := storage.NewPostgresClient(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Journal database connected successfully")

	locationProvider := platform.NewStaticLocation(
		cfg.Location.StaticLatitude, cfg.Location.StaticLongitude)
	captureSource := platform.NewSpoolCapture(cfg.Capture.SpoolDir)

	lifecycle, err := system.NewLifecycleManager(db, cfg, logger, locationProvider, captureSource)
	if err != nil {
		logger.Fatal("Failed to create lifecycle manager", zap.Error(err))
	}

	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start agent", zap.Error(err))
	}

	server := rest.NewServer(cfg, lifecycle, logger, lifecycle.Hub())
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start local API", zap.Error(err))
	}

	logger.Info("OpenFieldAgent started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Local API shutdown failed", zap.Error(err))
	}

	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("OpenFieldAgent stopped successfully")
}
