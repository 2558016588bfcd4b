package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxMessageLength int
	MaxBodySize      int
	Logger           *zap.Logger
}

// Middleware guards the JSON endpoints: content-type, body size, and a
// length cap on the free-text message field of escalation requests.
// Webhook ingest is exempt from the message checks; its body is opaque
// until the signature has been verified.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 5000
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 1024 * 1024
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if len(c.Body()) > cfg.MaxBodySize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Request body exceeds maximum size",
			})
		}

		if strings.Contains(c.Path(), "/api/v1/escalations") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if message, ok := req["message"].(string); ok && len(message) > cfg.MaxMessageLength {
				if cfg.Logger != nil {
					cfg.Logger.Warn("Oversized escalation message rejected",
						zap.String("ip", c.IP()),
						zap.Int("length", len(message)),
					)
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Message exceeds maximum length",
				})
			}
		}

		return c.Next()
	}
}
