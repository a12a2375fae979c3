package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dankozobeats/Voicetracker-sub001/internal/amqp"
	"github.com/dankozobeats/Voicetracker-sub001/internal/config"
	applog "github.com/dankozobeats/Voicetracker-sub001/internal/log"
	"github.com/dankozobeats/Voicetracker-sub001/internal/storage"
	"github.com/dankozobeats/Voicetracker-sub001/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: applog.DefaultConfig().Level, Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting sync-worker")

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

	// Unlike the other binaries the broker is mandatory here: consuming
	// events is the whole job.
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exporter, err := worker.NewJSONLExporter(cfg.ExportPath)
	if err != nil {
		logger.Error("Failed to open export log", applog.FieldError, err, "path", cfg.ExportPath)
		os.Exit(1)
	}
	defer exporter.Close()

	syncWorker := worker.NewSyncWorker(repo, exporter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Consuming transaction events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"export_path", cfg.ExportPath)

	if err := amqpClient.Consume(ctx, syncWorker.HandleTransactionEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Sync-worker shutdown complete")
}
