package handlers

import "github.com/gofiber/fiber/v2"

func SetupHealthRoutes(app fiber.Router) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
