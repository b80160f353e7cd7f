package health

import (
	"github.com/gofiber/fiber/v3"

	"chronicle-scrobbler/internal/chronicle"
)

// GET /health/chronicle verifies connectivity and the API key against the
// Chronicle server.
func Chronicle(client *chronicle.Client) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := client.Health(); err != nil {
			return c.Status(502).JSON(fiber.Map{"ok": false, "error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	}
}
