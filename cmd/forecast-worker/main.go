package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/dankozobeats/Voicetracker-sub001/internal/amqp"
	"github.com/dankozobeats/Voicetracker-sub001/internal/config"
	applog "github.com/dankozobeats/Voicetracker-sub001/internal/log"
	"github.com/dankozobeats/Voicetracker-sub001/internal/services"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: applog.DefaultConfig().Level, Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting forecast-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without a broker instances are still written to
	// SQLite, only the materialized events are skipped.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, materialized events will not be published")
	}

	processor := services.NewMaterializeProcessor(repo, repo, publisher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOnce := func(now time.Time) {
		runCtx, cancel := context.WithTimeout(ctx, cfg.MaterializeTimeout)
		defer cancel()

		count, err := processor.ProcessDueInstances(runCtx, now)
		if err != nil {
			logger.Error("Materialization run failed", applog.FieldError, err)
			return
		}
		logger.Info("Materialization run complete", "instances_created", count)
	}

	logger.Info("Materialization scheduler configured",
		"schedule", cfg.MaterializeCron,
		"timeout", cfg.MaterializeTimeout,
		"sqlite_db", cfg.SQLiteDBPath)

	// Run once on startup so a freshly deployed worker catches up
	// without waiting for the first tick.
	runOnce(time.Now())

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.MaterializeCron, func() { runOnce(time.Now()) }); err != nil {
		logger.Error("Invalid materialization schedule", applog.FieldError, err, "schedule", cfg.MaterializeCron)
		os.Exit(1)
	}
	scheduler.Start()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// Let an in-flight run finish before exiting.
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("Forecast-worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}
