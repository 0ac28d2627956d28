package relay

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterAPIRoutes registers introspection routes for the engine.
func (e *Engine) RegisterAPIRoutes(api fiber.Router) {
	endpoints := api.Group("/endpoints")

	// List connected endpoints
	endpoints.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"endpoints": e.Endpoints(),
			"count":     e.Count(),
		})
	})

	// Get engine stats
	endpoints.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(e.GetStats())
	})

	// Get one endpoint
	endpoints.Get("/:id", func(c *fiber.Ctx) error {
		info, ok := e.Endpoint(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrNotConnected.Error()})
		}
		return c.JSON(info)
	})
}
