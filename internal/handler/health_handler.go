package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// RegisterHealthRoutes wires liveness and readiness probes. mongoCheck pings
// the primary store; rdb is nil when rate limiting runs without Redis.
func RegisterHealthRoutes(app fiber.Router, mongoCheck func(context.Context) error, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(mongoCheck, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(mongoCheck func(context.Context) error, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		mongoErr := mongoCheck(ctx)
		var redisErr error
		if rdb != nil {
			redisErr = rdb.Ping(ctx).Err()
		}

		mongoStatus := "ok"
		if mongoErr != nil {
			mongoStatus = "down"
		}

		checks := fiber.Map{
			"mongodb": mongoStatus,
		}
		if rdb != nil {
			redisStatus := "ok"
			if redisErr != nil {
				redisStatus = "down"
			}
			checks["redis"] = redisStatus
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if mongoErr != nil || redisErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
