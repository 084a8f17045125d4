package handlers

import (
	"box-mining-service/logger"
	"box-mining-service/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindInvalidState:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError renders err as {error: message}. Internal causes are logged, never returned.
func respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(statusFor(kind)).JSON(fiber.Map{"error": services.PublicMessage(err)})
}
