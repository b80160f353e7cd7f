package status

import (
	"github.com/gofiber/fiber/v3"
	ws "github.com/saveblush/gofiber3-contrib/websocket"

	"chronicle-scrobbler/internal/scrobble"
)

type monitorSource interface {
	SessionInfo() *scrobble.SessionInfo
}

type Snapshot struct {
	Session  *scrobble.SessionInfo `json:"session"`
	Playing  *scrobble.Snapshot    `json:"playing"`
	PlayerOK bool                  `json:"playerReachable"`
}

// GET /status returns the current session plus a live snapshot of the host player.
func Current(monitor monitorSource, reader scrobble.SnapshotReader) fiber.Handler {
	return func(c fiber.Ctx) error {
		snapshot := Snapshot{Session: monitor.SessionInfo()}
		playing, err := reader.Current()
		if err == nil {
			snapshot.Playing = playing
			snapshot.PlayerOK = true
		}
		return c.JSON(snapshot)
	}
}

// WS upgrades to a WebSocket fed by the broadcaster: one JSON frame per
// engine event (session start/end, committed scrobbles).
func WS(b *Broadcaster) fiber.Handler {
	return ws.New(func(conn *ws.Conn) {
		defer func() {
			b.RemoveClient(conn)
			conn.Close()
		}()

		b.AddClient(conn)

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	})
}

// Upgrade gates the WS route behind a proper upgrade request.
func Upgrade(c fiber.Ctx) error {
	if ws.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
