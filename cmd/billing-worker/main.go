package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hearth/internal/amqp"
	"hearth/internal/config"
	applog "hearth/internal/log"
	"hearth/internal/metrics"
	"hearth/internal/services"
	"hearth/internal/storage"
)

// billing-worker re-posts subscription expenses on their billing day.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentBilling,
	})
	applog.SetDefault(logger)

	logger.Info("Starting billing-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	processor := services.NewBillingProcessor(repo, amqpClient, metrics.New())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Billing processor configured",
		"interval", cfg.BillingInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	// Run once on startup, then on the ticker.
	if count, err := processor.ProcessDueSubscriptions(ctx, time.Now().UTC()); err != nil {
		logger.Error("Initial billing run failed", "error", err)
	} else {
		logger.Info("Initial billing run complete", "posted", count)
	}

	ticker := time.NewTicker(cfg.BillingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Billing worker stopped gracefully")
			return
		case now := <-ticker.C:
			count, err := processor.ProcessDueSubscriptions(ctx, now.UTC())
			if err != nil {
				logger.Error("Billing run failed", "error", err)
				continue
			}
			if count > 0 {
				logger.Info("Billing run complete", "posted", count)
			}
		}
	}
}
