package pair

import (
	"github.com/gofiber/fiber/v3"

	"chronicle-scrobbler/internal/pairing"
)

// POST /pair/start initiates device pairing with the Chronicle server. The
// response carries the display code and verification URL for the user.
func Start(manager *pairing.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		status, err := manager.Start()
		if err != nil {
			return c.Status(502).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(status)
	}
}

// GET /pair/status polls the pairing state.
func Status(manager *pairing.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(manager.Status())
	}
}

// POST /pair/cancel abandons a pending pairing flow.
func Cancel(manager *pairing.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		manager.Cancel()
		return c.JSON(fiber.Map{"success": true})
	}
}
