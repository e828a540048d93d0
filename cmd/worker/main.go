package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waseemanjum-be/NotifyHub/internal/cache"
	"github.com/waseemanjum-be/NotifyHub/internal/config"
	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"github.com/waseemanjum-be/NotifyHub/internal/handler"
	"github.com/waseemanjum-be/NotifyHub/internal/infra/mongodb"
	infraredis "github.com/waseemanjum-be/NotifyHub/internal/infra/redis"
	"github.com/waseemanjum-be/NotifyHub/internal/observability"
	"github.com/waseemanjum-be/NotifyHub/internal/provider"
	"github.com/waseemanjum-be/NotifyHub/internal/ratelimit"
	"github.com/waseemanjum-be/NotifyHub/internal/repository"
	"github.com/waseemanjum-be/NotifyHub/internal/retry"
	"github.com/waseemanjum-be/NotifyHub/internal/service"
	"github.com/waseemanjum-be/NotifyHub/internal/transport"
)

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

	deliveryRepo := repository.NewMongoDeliveryRepo(client, db)
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
	lookups := service.NewCachedLookups(repository.NewMongoLookupRepo(db), lookupCache, cfg.CacheTTL(), logger)

	channels, err := cfg.Channels()
	if err != nil {
		logger.Fatal("invalid worker channel configuration", zap.Error(err))
	}
	registry, err := buildProviderRegistry(cfg, channels)
	if err != nil {
		logger.Fatal("provider setup failed", zap.Error(err))
	}

	var limiter ratelimit.RateLimiter = ratelimit.NoopLimiter{}
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()

		overrides, err := cfg.RateLimitChannelOverrides()
		if err != nil {
			logger.Fatal("invalid rate limit configuration", zap.Error(err))
		}
		limiter, err = infraredis.NewRateLimiter(rdb, cfg.RateLimitPerSec, overrides)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
	}

	policy := retry.NewPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay(), cfg.RetryMaxDelay(), cfg.RetryJitterRatio)

	metrics := observability.NewMetrics()

	worker, err := service.NewWorkerService(
		deliveryRepo,
		lookups,
		registry,
		limiter,
		policy,
		service.WorkerOptions{
			Concurrency:  cfg.WorkerConcurrency,
			BatchSize:    cfg.WorkerBatchSize,
			PollInterval: cfg.WorkerPollInterval(),
			Lease:        cfg.WorkerLease(),
			Channels:     channels,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	handler.RegisterHealthRoutes(app, mongodb.Healthcheck(client), rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	go func() {
		logger.Info("worker probes started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Error("worker probe listener stopped", zap.Error(err))
		}
	}()
	defer func() {
		if err := app.Shutdown(); err != nil {
			logger.Error("probe shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("batchSize", cfg.WorkerBatchSize),
		zap.Any("channels", channels),
	)

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func buildProviderRegistry(cfg *config.Config, channels []domain.Channel) (*provider.Registry, error) {
	retryableCodes, err := cfg.RetryableStatusCodes()
	if err != nil {
		return nil, err
	}

	providers := make(map[domain.Channel]provider.Provider, len(channels))
	for _, channel := range channels {
		baseURL, apiKey := cfg.ProviderEndpoint(channel)
		p, err := provider.NewHTTPProvider(baseURL, apiKey, cfg.ProviderTimeout(), retryableCodes)
		if err != nil {
			return nil, fmt.Errorf("provider for channel %s: %w", channel, err)
		}
		providers[channel] = p
	}

	return provider.NewRegistry(providers)
}
