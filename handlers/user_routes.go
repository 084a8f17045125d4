// handlers/user_routes.go
package handlers

import (
	"net/url"
	"strings"

	"box-mining-service/middleware"
	"box-mining-service/services"

	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	Leaderboard *services.LeaderboardService
}

func NewUserHandler(leaderboard *services.LeaderboardService) *UserHandler {
	return &UserHandler{Leaderboard: leaderboard}
}

func SetupUserRoutes(app fiber.Router, h *UserHandler, auth *middleware.Authenticator) {
	app.Get("/users", h.List)
	app.Get("/users/:username", middleware.RequireAuth(auth), h.Get)
}

// List serves the leaderboard. Bad paging values fall back to the defaults.
func (h *UserHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", services.DefaultLeaderboardLimit)
	result, err := h.Leaderboard.List(c.UserContext(), page, limit, c.Query("search"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func (h *UserHandler) Get(c *fiber.Ctx) error {
	username, err := url.PathUnescape(c.Params("username"))
	if err != nil || strings.TrimSpace(username) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username is required"})
	}
	rank, err := h.Leaderboard.Rank(c.UserContext(), username)
	if err != nil {
		if services.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return respondError(c, err)
	}
	return c.JSON(rank)
}
