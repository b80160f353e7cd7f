package health

import (
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v3"

	"chronicle-scrobbler/internal/scrobble"
)

type HealthStatus struct {
	OK        bool           `json:"ok"`
	Timestamp string         `json:"timestamp"`
	Database  DatabaseHealth `json:"database"`
	Session   SessionHealth  `json:"session"`
}

type DatabaseHealth struct {
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	ConnectionTime string `json:"connection_time"`
}

type SessionHealth struct {
	Active bool   `json:"active"`
	Title  string `json:"title,omitempty"`
}

// sessionSource is the slice of the monitor the handler needs.
type sessionSource interface {
	SessionInfo() *scrobble.SessionInfo
}

// GET /health
func Health(db *sql.DB, monitor sessionSource) fiber.Handler {
	return func(c fiber.Ctx) error {
		status := HealthStatus{
			OK:        true,
			Timestamp: time.Now().Format(time.RFC3339),
		}

		dbStart := time.Now()
		err := db.Ping()
		status.Database.ConnectionTime = time.Since(dbStart).String()
		if err != nil {
			status.OK = false
			status.Database.Error = err.Error()
		} else {
			status.Database.OK = true
		}

		if info := monitor.SessionInfo(); info != nil {
			status.Session.Active = true
			status.Session.Title = info.Title
		}

		if !status.OK {
			return c.Status(503).JSON(status)
		}
		return c.JSON(status)
	}
}
