package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"hearth/internal/amqp"
	"hearth/internal/config"
	"hearth/internal/hub"
	applog "hearth/internal/log"
)

// hearth-worker consumes broker events and logs delivery. It exists so
// notification fan-out can run separately from the API server.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting hearth-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err, "url", cfg.AMQPURL)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker keeps its own hub so future transports (push, mail)
	// can subscribe next to the log sink.
	eventHub := hub.New()

	err = client.ConsumeEvents(ctx, func(event *amqp.Event) error {
		eventHub.Broadcast(event)
		slog.InfoContext(ctx, "Event received",
			"type", event.Type,
			"group_id", event.GroupID,
			"user_id", event.UserID,
			"points", event.Points)
		return nil
	})
	if err != nil && err != context.Canceled {
		logger.Error("Consumer stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
