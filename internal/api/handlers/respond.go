package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/support-copilot/backend/pkg/errs"
)

func isExternal(err error) bool {
	var ee *errs.ExternalServiceError
	return errors.As(err, &ee)
}

// respondError maps the shared error taxonomy onto HTTP statuses. Anything
// unclassified is a 500 with a generic message so internals never leak.
func respondError(c *fiber.Ctx, err error) error {
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		body := fiber.Map{"error": ve.Message}
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	}

	switch {
	case errs.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errs.IsInvalidState(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errs.IsSignature(err):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "signature verification failed",
		})
	case isExternal(err):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "upstream service failed",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}
