// handlers/box_routes.go
package handlers

import (
	"bufio"
	"context"

	"box-mining-service/middleware"
	"box-mining-service/services"

	"github.com/gofiber/fiber/v2"
)

type BoxHandler struct {
	Boxes  *services.BoxService
	Stream services.StreamOptions
	// ShutdownCtx ends open status streams when the server stops.
	ShutdownCtx context.Context
}

func NewBoxHandler(shutdownCtx context.Context, boxes *services.BoxService) *BoxHandler {
	if shutdownCtx == nil {
		shutdownCtx = context.Background()
	}
	return &BoxHandler{Boxes: boxes, Stream: services.DefaultStreamOptions, ShutdownCtx: shutdownCtx}
}

func SetupBoxRoutes(app fiber.Router, h *BoxHandler, auth *middleware.Authenticator) {
	// 🔓 Public catalog
	app.Get("/boxes", h.ListBoxes)

	// /box/status must be registered before /box/:id
	app.Get("/box/status", middleware.RequireAuth(auth), h.Status)
	app.Get("/box/status/stream", middleware.StreamAuth(auth), h.StatusStream)

	app.Get("/box/:id", middleware.OptionalAuth(auth), h.GetBox)

	// 🔐 Lifecycle
	requireAuth := middleware.RequireAuth(auth)
	app.Post("/box/:id/start", requireAuth, h.Start)
	app.Post("/box/:id/mission", requireAuth, h.CompleteMission)
	app.Post("/box/:id/claim", requireAuth, h.Claim)
}

func (h *BoxHandler) ListBoxes(c *fiber.Ctx) error {
	boxes, err := h.Boxes.Catalog(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"boxes": boxes})
}

func (h *BoxHandler) Status(c *fiber.Ctx) error {
	status, err := h.Boxes.StatusFor(c.UserContext(), middleware.Username(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// StatusStream pushes status changes as server-sent events until the client leaves or the stream times out.
func (h *BoxHandler) StatusStream(c *fiber.Ctx) error {
	username := middleware.Username(c)
	opts := h.Stream
	ctx := h.ShutdownCtx

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// the fiber context is recycled once the handler returns
		h.Boxes.WriteStatusStream(ctx, w, username, opts)
	})
	return nil
}

func (h *BoxHandler) GetBox(c *fiber.Ctx) error {
	view, err := h.Boxes.TemplateView(c.UserContext(), middleware.Username(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *BoxHandler) Start(c *fiber.Ctx) error {
	box, err := h.Boxes.Start(c.UserContext(), middleware.Username(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Box mining started", "box": box})
}

func (h *BoxHandler) CompleteMission(c *fiber.Ctx) error {
	if err := h.Boxes.CompleteMission(c.UserContext(), middleware.Username(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Mission marked as completed."})
}

func (h *BoxHandler) Claim(c *fiber.Ctx) error {
	result, err := h.Boxes.Claim(c.UserContext(), middleware.Username(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":      "Box opened! Prize credited.",
		"prizeAmount":  result.PrizeAmount,
		"prizeType":    result.PrizeType,
		"newBalance":   result.NewBalance,
		"promoApplied": result.PromoApplied,
	})
}
