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

	"github.com/mizuki/formflow/internal/api"
	"github.com/mizuki/formflow/internal/config"
	"github.com/mizuki/formflow/internal/logger"
	"github.com/mizuki/formflow/internal/observability"
	"github.com/mizuki/formflow/internal/reaper"
	"github.com/mizuki/formflow/internal/relay"
	"github.com/mizuki/formflow/internal/store"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.SetDefaultLogger(logger.NewDefault())
	defer logger.Sync()

	// Initialize job store
	var jobStore store.JobStore
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory job store; jobs will not survive a restart")
		jobStore = store.NewMemoryStore()
	} else {
		db, err := store.InitDB(&cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize database: %v", err)
		}
		jobStore = store.NewGormStore(db)
	}

	if cfg.Callback.Secret == "" {
		logger.Warn("No callback secret configured; callback authentication is DISABLED")
	}
	if cfg.Worker.WebhookURL == "" {
		logger.Warn("No worker webhook URL configured; submissions will be rejected")
	}

	// Initialize metrics
	metrics, metricsHandler := observability.NewMetrics()

	// Initialize relay components
	submitter := relay.NewSubmitter(jobStore, &cfg.Worker)
	callback := relay.NewCallback(jobStore, relay.NewSecretAuthorizer(cfg.Callback.Secret))
	streamer := relay.NewStreamer(jobStore)

	// Initialize the stale-job reaper
	var jobReaper *reaper.Reaper
	if cfg.Reaper.Enabled {
		jobReaper, err = reaper.New(jobStore, &cfg.Reaper, metrics)
		if err != nil {
			logger.Fatal("Failed to initialize reaper: %v", err)
		}
		jobReaper.Start()
		logger.Info("Reaper started: schedule=%s, job_ttl=%s", cfg.Reaper.Schedule, cfg.Reaper.JobTTL)
	}

	// Setup router
	router := api.SetupRouter(api.RouterDeps{
		Submitter: submitter,
		Callback:  callback,
		Streamer:  streamer,
		Store:     jobStore,
		Metrics:   metrics,
		MetricsH:  metricsHandler,
		StaticDir: cfg.Server.StaticDir,
	}, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting API server: port=%d, mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if jobReaper != nil {
		jobReaper.Stop()
	}

	// Graceful shutdown with timeout; open streams are cut when it expires
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
