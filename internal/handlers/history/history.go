package history

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"chronicle-scrobbler/internal/history"
)

// GET /history?limit=50 returns the most recent committed scrobbles.
func Recent(recorder *history.Recorder) fiber.Handler {
	return func(c fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		entries, err := recorder.Recent(limit)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch history"})
		}
		return c.JSON(entries)
	}
}
