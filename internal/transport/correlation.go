package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/waseemanjum-be/NotifyHub/internal/observability"
)

// RequestCorrelation assigns every request a correlation id, taken from the
// X-Request-ID header when the caller sent one. The id rides the request's
// user context so downstream logs can carry it, and is echoed back in the
// response header.
func RequestCorrelation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		c.Set(fiber.HeaderXRequestID, correlationID)

		return c.Next()
	}
}
