package status

import (
	"sync"

	ws "github.com/saveblush/gofiber3-contrib/websocket"

	"chronicle-scrobbler/internal/logging"
	"chronicle-scrobbler/internal/scrobble"
)

// Broadcaster fans engine events out to every connected WebSocket client.
// Unlike a polling broadcaster it has no loop of its own: main feeds it from
// the monitor's event channel.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*ws.Conn]bool
	log     logging.Logger
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*ws.Conn]bool),
		log:     logging.Default().With("component", "broadcaster"),
	}
}

// Publish sends one event to all connected clients. A client that fails to
// accept the write is dropped.
func (b *Broadcaster) Publish(ev scrobble.Event) {
	b.mu.RLock()
	clients := make([]*ws.Conn, 0, len(b.clients))
	for client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		if err := client.WriteJSON(ev); err != nil {
			b.RemoveClient(client)
			client.Close()
		}
	}
}

// AddClient registers a new WebSocket client for broadcasts.
func (b *Broadcaster) AddClient(conn *ws.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn] = true
}

// RemoveClient unregisters a WebSocket client.
func (b *Broadcaster) RemoveClient(conn *ws.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, conn)
}

// Close drops and closes every client connection.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		client.Close()
	}
	b.clients = make(map[*ws.Conn]bool)
}
