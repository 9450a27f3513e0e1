package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"hearth/internal/amqp"
	"hearth/internal/auth"
	"hearth/internal/cache"
	"hearth/internal/config"
	apphttp "hearth/internal/http"
	"hearth/internal/hub"
	applog "hearth/internal/log"
	"hearth/internal/metrics"
	"hearth/internal/services"
	"hearth/internal/storage"
	"hearth/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:  applog.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	applog.SetDefault(logger)

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

	var balances cache.Cache[services.BalanceReport]
	cacheManager := cache.NewManager()
	switch cfg.CacheBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		balances = cache.NewRedisCache[services.BalanceReport](rdb, "balances", cfg.CacheTTL)
		logger.Info("Using Redis balance cache", "addr", cfg.RedisAddr)
	default:
		lru := cache.NewLRUCache[services.BalanceReport](cfg.CacheSize, cfg.CacheTTL)
		cacheManager.Register(lru)
		balances = lru
	}
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	m := metrics.New()
	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	eventHub := hub.New()

	expenseService := services.NewExpenseService(repo, amqpClient, balances, m)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:         services.NewAuthService(repo, tokens),
		Groups:       services.NewGroupService(repo, expenseService),
		Tasks:        services.NewTaskService(repo, amqpClient, m),
		Expenses:     expenseService,
		Rewards:      services.NewRewardService(repo, amqpClient, m),
		Achievements: services.NewAchievementService(repo, amqpClient, m),
		Tokens:       tokens,
		Metrics:      m,
		Hub:          eventHub,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting hearth server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if amqpClient != nil {
		notify := worker.NewNotifyWorker(amqpClient, eventHub)
		g.Go(func() error {
			if err := notify.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
