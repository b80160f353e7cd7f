package settings

import (
	"github.com/gofiber/fiber/v3"

	"chronicle-scrobbler/internal/logging"
	"chronicle-scrobbler/internal/settings"
)

type UpdateSettingRequest struct {
	Value string `json:"value"`
}

// GetSettings returns all application settings. The API key value is masked;
// its presence is all a client needs to know.
func GetSettings(store *settings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		all, err := store.All()
		if err != nil {
			logging.Debug("querying settings failed", "err", err)
			return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch settings"})
		}

		for i := range all {
			if all[i].Key == settings.KeyAPIKey && all[i].Value != "" {
				all[i].Value = "********"
			}
		}
		return c.JSON(all)
	}
}

// UpdateSetting updates a specific setting value. Engine decisions pick the
// new value up on their next evaluation; no restart involved.
func UpdateSetting(store *settings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Params("key")
		if key == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Setting key is required"})
		}

		var req UpdateSettingRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}

		if !settings.ValidSetting(key, req.Value) {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid setting key or value"})
		}

		if err := store.Set(key, req.Value); err != nil {
			logging.Debug("updating setting failed", "key", key, "err", err)
			return c.Status(500).JSON(fiber.Map{"error": "Failed to update setting"})
		}

		return c.JSON(fiber.Map{"success": true, "key": key})
	}
}
