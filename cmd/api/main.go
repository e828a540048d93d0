package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waseemanjum-be/NotifyHub/internal/cache"
	"github.com/waseemanjum-be/NotifyHub/internal/config"
	"github.com/waseemanjum-be/NotifyHub/internal/handler"
	"github.com/waseemanjum-be/NotifyHub/internal/infra/mongodb"
	infraredis "github.com/waseemanjum-be/NotifyHub/internal/infra/redis"
	"github.com/waseemanjum-be/NotifyHub/internal/observability"
	"github.com/waseemanjum-be/NotifyHub/internal/repository"
	"github.com/waseemanjum-be/NotifyHub/internal/service"
	"github.com/waseemanjum-be/NotifyHub/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mongodb.New(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal("mongodb initialization failed", zap.Error(err))
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("mongodb disconnect failed", zap.Error(err))
		}
	}()
	db := client.Database(cfg.MongoDB)

	notificationRepo := repository.NewMongoNotificationRepo(client, db)
	deliveryRepo := repository.NewMongoDeliveryRepo(client, db)
	lookupRepo := repository.NewMongoLookupRepo(db)

	if err := notificationRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal("notification index setup failed", zap.Error(err))
	}
	if err := deliveryRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal("delivery index setup failed", zap.Error(err))
	}

	lookupCache, err := cache.New(cache.Options{
		Backend:      cfg.CacheBackend,
		LRUSize:      cfg.CacheLRUSize,
		MemcacheAddr: cfg.MemcacheAddr,
	})
	if err != nil {
		logger.Fatal("cache initialization failed", zap.Error(err))
	}
	lookups := service.NewCachedLookups(lookupRepo, lookupCache, cfg.CacheTTL(), logger)

	notificationService, err := service.NewNotificationService(notificationRepo, deliveryRepo, lookups, logger)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()
	}

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(transport.RequestCorrelation())
	app.Use(metrics.HTTPMiddleware())

	api := app.Group("/api")
	if err := handler.RegisterNotificationRoutes(api, notificationService); err != nil {
		logger.Fatal("notification route setup failed", zap.Error(err))
	}
	if err := handler.RegisterCallbackRoutes(api, notificationService, cfg.ProviderCallbackToken, metrics); err != nil {
		logger.Fatal("callback route setup failed", zap.Error(err))
	}
	handler.RegisterHealthRoutes(app, mongodb.Healthcheck(client), rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	go func() {
		logger.Info("api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Error("api listener stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
}
