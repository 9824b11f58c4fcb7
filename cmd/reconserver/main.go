package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pandawa-stack/ai-bank-recon/internal/api"
	"github.com/pandawa-stack/ai-bank-recon/internal/config"
	"github.com/pandawa-stack/ai-bank-recon/internal/observability"
	"github.com/pandawa-stack/ai-bank-recon/internal/reconciliation"
	"github.com/pandawa-stack/ai-bank-recon/internal/storage"
	"github.com/pandawa-stack/ai-bank-recon/internal/worker"
)

func main() {
	cfg := loadConfig()
	logger := observability.NewLogger(cfg.Logging)

	logger.Info("starting reconciliation service", "environment", cfg.Server.Environment)

	engine := reconciliation.NewEngine(logger)
	service := reconciliation.NewService(engine, logger)

	var store storage.Repository
	if cfg.Storage.DatabasePath != "" {
		s, err := storage.NewStorage(cfg.Storage.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		defer s.Close()
		store = s
	}

	pool := worker.NewPool(worker.Config{
		Workers:         cfg.Worker.Workers,
		QueueSize:       cfg.Worker.QueueSize,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	}, logger)

	server := api.NewServer(cfg, service, pool, store)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := pool.Stop(); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("stopped")
}

func loadConfig() *config.Config {
	configPath := os.Getenv("RECON_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Printf("Failed to load config from %s: %v, using defaults", configPath, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}
